package protocol

import "github.com/sarchlab/rubysim/coherence"

// Cache states.
const (
	CacheI   coherence.State = "I"
	CacheS   coherence.State = "S"
	CacheE   coherence.State = "E"
	CacheM   coherence.State = "M"
	CacheISD coherence.State = "IS_D"
	CacheIMD coherence.State = "IM_D"
	CacheSMD coherence.State = "SM_D"
	CacheMIA coherence.State = "MI_A"
	CacheIIA coherence.State = "II_A"
)

// Directory states.
const (
	DirI    coherence.State = "I"
	DirS    coherence.State = "S"
	DirM    coherence.State = "M"
	DirISM  coherence.State = "IS_M"
	DirIMM  coherence.State = "IM_M"
	DirSSM  coherence.State = "SS_M"
	DirSMAM coherence.State = "SM_AM"
	DirSMA  coherence.State = "SM_A"
	DirSMM  coherence.State = "SM_M"
	DirMSD  coherence.State = "MS_D"
	DirMMD  coherence.State = "MM_D"
)

// Cache events. Atomic accesses raise EvStore since they need write
// permission.
const (
	EvLoad        Event = "Load"
	EvStore       Event = "Store"
	EvReplacement Event = "Replacement"
	EvInv         Event = "Inv"
	EvFwdGetS     Event = "FwdGetS"
	EvFwdGetM     Event = "FwdGetM"
	EvData        Event = "Data"
	EvDataE       Event = "DataE"
	EvPutAck      Event = "PutAck"
	EvNack        Event = "Nack"
)

// Directory events.
const (
	EvGetS           Event = "GetS"
	EvGetM           Event = "GetM"
	EvGetMSoleSharer Event = "GetMSoleSharer"
	EvPutMOwner      Event = "PutMOwner"
	EvPutMStale      Event = "PutMStale"
	EvInvAck         Event = "InvAck"
	EvLastInvAck     Event = "LastInvAck"
	EvOwnerData      Event = "OwnerData"
	EvMemData        Event = "MemData"
)

// Cache actions.
const (
	// ActStall keeps the core request queued until the line changes state.
	ActStall         Action = "stall"
	ActAllocate      Action = "allocate"
	ActDeallocate    Action = "deallocate"
	ActIssueGetS     Action = "issueGetS"
	ActIssueGetM     Action = "issueGetM"
	ActIssuePutM     Action = "issuePutM"
	ActSendInvAck    Action = "sendInvAck"
	ActSendOwnerData Action = "sendOwnerData"
	ActWriteData     Action = "writeData"
	ActAckTxn        Action = "ackTxn"
	ActPerformAccess Action = "performAccess"
	ActScheduleRetry Action = "scheduleRetry"
)

// Directory actions.
const (
	ActRecordRequestor    Action = "recordRequestor"
	ActReadMemory         Action = "readMemory"
	ActWriteMemory        Action = "writeMemory"
	ActSaveData           Action = "saveData"
	ActSendData           Action = "sendData"
	ActSendExclusiveData  Action = "sendExclusiveData"
	ActAddRequestorSharer Action = "addRequestorToSharers"
	ActAddOwnerSharer     Action = "addOwnerToSharers"
	ActSetOwnerRequestor  Action = "setOwnerToRequestor"
	ActClearOwner         Action = "clearOwner"
	ActInvalidateSharers  Action = "invalidateSharers"
	ActFwdGetSToOwner     Action = "fwdGetSToOwner"
	ActFwdGetMToOwner     Action = "fwdGetMToOwner"
	ActRecordAck          Action = "recordAck"
	ActSendPutAck         Action = "sendPutAck"
	ActSendNack           Action = "sendNack"
	ActFinish             Action = "finish"
)

// CacheActions lists every action a cache controller must implement.
var CacheActions = []Action{
	ActStall, ActAllocate, ActDeallocate, ActIssueGetS, ActIssueGetM,
	ActIssuePutM, ActSendInvAck, ActSendOwnerData, ActWriteData, ActAckTxn,
	ActPerformAccess, ActScheduleRetry,
}

// DirectoryActions lists every action a directory controller must
// implement.
var DirectoryActions = []Action{
	ActRecordRequestor, ActReadMemory, ActWriteMemory, ActSaveData,
	ActSendData, ActSendExclusiveData, ActAddRequestorSharer,
	ActAddOwnerSharer, ActSetOwnerRequestor, ActClearOwner,
	ActInvalidateSharers, ActFwdGetSToOwner, ActFwdGetMToOwner, ActRecordAck,
	ActSendPutAck, ActSendNack, ActFinish,
}

var directoryEvents = []Event{
	EvGetS, EvGetM, EvGetMSoleSharer, EvPutMOwner, EvPutMStale, EvInvAck,
	EvLastInvAck, EvOwnerData, EvMemData,
}

var directoryRequests = []Event{
	EvGetS, EvGetM, EvGetMSoleSharer, EvPutMOwner, EvPutMStale,
}
