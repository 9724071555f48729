// Package port implements the per-port PTP state machine: the nine
// standard port states, the event set that drives transitions between them,
// and the entry/exit actions each transition runs. It is grounded on the
// event-driven dispatch style of ptp/simpleclient's handleMsg/setState and
// ptp4u/server's message-type routing, generalized from a unicast client/
// server split into a single bidirectional state machine per the standard.
package port

import ptp "github.com/ptpsync/ptpcore/protocol"

// Event is a stimulus the port state machine reacts to.
type Event uint8

// Events the state machine recognizes.
const (
	EventPowerUp Event = iota
	EventInitialize
	EventInitializeFailed
	EventDesignatedEnabled
	EventDesignatedDisabled
	EventFaultDetected
	EventFaultCleared
	EventAnnounceReceiptTimeout
	EventQualificationTimeoutExpires
	EventSyncReceiptTimeout
	// EventRSMaster/EventRSGrandMaster/EventRSSlave/EventRSPassive/
	// EventRSListening are the five possible outcomes of a BMCA
	// recommended-state decision. Port.runBMCA raises EventRSMaster,
	// EventRSSlave and EventRSPassive, feeding each back into the state
	// machine as an event the same tick it was decided.
	EventRSMaster
	EventRSGrandMaster
	EventRSSlave
	EventRSPassive
	EventRSListening
	// EventUncalibratedSynced fires when the sync heuristic is satisfied:
	// at least 3 successful offset samples and zero validation failures
	// since entering Uncalibrated.
	EventUncalibratedSynced
	// EventSynchronizationFault fires when the servo detects holdover (no
	// accepted offset sample for too long) while tracking a master.
	EventSynchronizationFault
)

func (e Event) String() string {
	switch e {
	case EventPowerUp:
		return "POWER_UP"
	case EventInitialize:
		return "INITIALIZE"
	case EventInitializeFailed:
		return "INITIALIZE_FAILED"
	case EventDesignatedEnabled:
		return "DESIGNATED_ENABLED"
	case EventDesignatedDisabled:
		return "DESIGNATED_DISABLED"
	case EventFaultDetected:
		return "FAULT_DETECTED"
	case EventFaultCleared:
		return "FAULT_CLEARED"
	case EventAnnounceReceiptTimeout:
		return "ANNOUNCE_RECEIPT_TIMEOUT"
	case EventQualificationTimeoutExpires:
		return "QUALIFICATION_TIMEOUT_EXPIRES"
	case EventSyncReceiptTimeout:
		return "SYNC_RECEIPT_TIMEOUT"
	case EventRSMaster:
		return "RS_MASTER"
	case EventRSGrandMaster:
		return "RS_GRAND_MASTER"
	case EventRSSlave:
		return "RS_SLAVE"
	case EventRSPassive:
		return "RS_PASSIVE"
	case EventRSListening:
		return "RS_LISTENING"
	case EventUncalibratedSynced:
		return "UNCALIBRATED_SYNCED"
	case EventSynchronizationFault:
		return "SYNCHRONIZATION_FAULT"
	}
	return "UNKNOWN_EVENT"
}

// transitionTable maps (current state, event) to next state. Entries absent
// from the table mean the event has no effect in that state, which is the
// common case (e.g. a Slave port ignores RS_SLAVE).
var transitionTable = map[ptp.PortState]map[Event]ptp.PortState{
	ptp.PortStateInitializing: {
		EventInitialize:       ptp.PortStateListening,
		EventInitializeFailed: ptp.PortStateFaulty,
		EventFaultDetected:    ptp.PortStateFaulty,
		EventDesignatedDisabled: ptp.PortStateDisabled,
	},
	ptp.PortStateFaulty: {
		EventFaultCleared:       ptp.PortStateInitializing,
		EventDesignatedDisabled: ptp.PortStateDisabled,
	},
	ptp.PortStateDisabled: {
		EventDesignatedEnabled: ptp.PortStateInitializing,
		EventFaultDetected:     ptp.PortStateFaulty,
	},
	ptp.PortStateListening: {
		EventRSMaster:               ptp.PortStatePreMaster,
		EventRSGrandMaster:          ptp.PortStatePreMaster,
		EventRSSlave:                ptp.PortStateUncalibrated,
		EventRSPassive:              ptp.PortStatePassive,
		EventFaultDetected:          ptp.PortStateFaulty,
		EventDesignatedDisabled:     ptp.PortStateDisabled,
	},
	ptp.PortStatePreMaster: {
		EventQualificationTimeoutExpires: ptp.PortStateMaster,
		EventRSSlave:                     ptp.PortStateUncalibrated,
		EventRSPassive:                   ptp.PortStatePassive,
		EventRSListening:                 ptp.PortStateListening,
		EventFaultDetected:               ptp.PortStateFaulty,
		EventDesignatedDisabled:          ptp.PortStateDisabled,
	},
	ptp.PortStateMaster: {
		EventRSSlave:            ptp.PortStateUncalibrated,
		EventRSPassive:          ptp.PortStatePassive,
		EventRSListening:        ptp.PortStateListening,
		EventFaultDetected:      ptp.PortStateFaulty,
		EventDesignatedDisabled: ptp.PortStateDisabled,
	},
	ptp.PortStatePassive: {
		EventRSMaster:               ptp.PortStatePreMaster,
		EventRSGrandMaster:          ptp.PortStatePreMaster,
		EventRSSlave:                ptp.PortStateUncalibrated,
		EventFaultDetected:          ptp.PortStateFaulty,
		EventDesignatedDisabled:     ptp.PortStateDisabled,
	},
	ptp.PortStateUncalibrated: {
		EventUncalibratedSynced:     ptp.PortStateSlave,
		EventRSMaster:               ptp.PortStatePreMaster,
		EventRSGrandMaster:          ptp.PortStatePreMaster,
		EventRSPassive:              ptp.PortStatePassive,
		EventRSListening:            ptp.PortStateListening,
		EventAnnounceReceiptTimeout: ptp.PortStateListening,
		EventSynchronizationFault:   ptp.PortStateListening,
		EventFaultDetected:          ptp.PortStateFaulty,
		EventDesignatedDisabled:     ptp.PortStateDisabled,
	},
	ptp.PortStateSlave: {
		EventRSMaster:               ptp.PortStatePreMaster,
		EventRSGrandMaster:          ptp.PortStatePreMaster,
		EventRSPassive:              ptp.PortStatePassive,
		EventRSListening:            ptp.PortStateListening,
		EventAnnounceReceiptTimeout: ptp.PortStateListening,
		EventSyncReceiptTimeout:     ptp.PortStateUncalibrated,
		EventSynchronizationFault:   ptp.PortStateUncalibrated,
		EventFaultDetected:          ptp.PortStateFaulty,
		EventDesignatedDisabled:     ptp.PortStateDisabled,
	},
}

// nextState looks up the transition table; ok is false when the event has no
// effect in the current state.
func nextState(current ptp.PortState, ev Event) (ptp.PortState, bool) {
	row, ok := transitionTable[current]
	if !ok {
		return current, false
	}
	to, ok := row[ev]
	return to, ok
}
