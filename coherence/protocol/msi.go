package protocol

import "github.com/sarchlab/rubysim/coherence"

type states = []coherence.State
type events = []Event
type actions = []Action

func cacheStates(withE bool) []StateSpec {
	list := []StateSpec{
		{Name: CacheI, Description: "invalid", Stable: true},
		{Name: CacheS, Description: "shared, read-only", Stable: true},
		{Name: CacheM, Description: "modified, read-write", Stable: true},
		{Name: CacheISD, Description: "issued GetS, waiting for data"},
		{Name: CacheIMD, Description: "issued GetM, waiting for data"},
		{Name: CacheSMD, Description: "shared, issued GetM, waiting for data"},
		{Name: CacheMIA, Description: "issued PutM, waiting for PutAck"},
		{Name: CacheIIA, Description: "forwarded data during writeback, " +
			"waiting for PutAck or Nack"},
	}

	if withE {
		list = append(list, StateSpec{
			Name: CacheE, Description: "exclusive, clean", Stable: true,
		})
	}

	return list
}

// msiCacheTransitions are shared by MSI and MESI caches.
var msiCacheTransitions = []TransitionSpec{
	{states{CacheI}, events{EvLoad}, CacheISD, actions{ActAllocate, ActIssueGetS}},
	{states{CacheI}, events{EvStore}, CacheIMD, actions{ActAllocate, ActIssueGetM}},
	{states{CacheI}, events{EvInv}, CacheI, actions{ActSendInvAck}},

	{states{CacheISD, CacheIMD, CacheMIA, CacheIIA}, events{EvLoad, EvStore}, "", actions{ActStall}},
	{states{CacheISD, CacheIMD, CacheIIA}, events{EvInv}, "", actions{ActSendInvAck}},
	{states{CacheISD, CacheIMD, CacheSMD}, events{EvNack}, "", actions{ActAckTxn, ActScheduleRetry}},
	{states{CacheISD}, events{EvData}, CacheS, actions{ActWriteData, ActAckTxn, ActPerformAccess}},
	{states{CacheIMD, CacheSMD}, events{EvData}, CacheM, actions{ActWriteData, ActAckTxn, ActPerformAccess}},

	{states{CacheS}, events{EvLoad}, CacheS, actions{ActPerformAccess}},
	{states{CacheS}, events{EvStore}, CacheSMD, actions{ActIssueGetM}},
	{states{CacheS}, events{EvReplacement}, CacheI, actions{ActDeallocate}},
	{states{CacheS}, events{EvInv}, CacheI, actions{ActSendInvAck, ActDeallocate}},

	{states{CacheSMD}, events{EvLoad}, CacheSMD, actions{ActPerformAccess}},
	{states{CacheSMD}, events{EvStore}, CacheSMD, actions{ActStall}},
	{states{CacheSMD}, events{EvInv}, CacheIMD, actions{ActSendInvAck}},

	{states{CacheM}, events{EvLoad, EvStore}, CacheM, actions{ActPerformAccess}},
	{states{CacheM}, events{EvReplacement}, CacheMIA, actions{ActIssuePutM}},
	{states{CacheM}, events{EvFwdGetS}, CacheS, actions{ActSendOwnerData}},
	{states{CacheM}, events{EvFwdGetM}, CacheI, actions{ActSendOwnerData, ActDeallocate}},

	{states{CacheMIA}, events{EvFwdGetS, EvFwdGetM}, CacheIIA, actions{ActSendOwnerData}},
	{states{CacheMIA}, events{EvPutAck}, CacheI, actions{ActDeallocate}},
	{states{CacheMIA}, events{EvNack}, CacheMIA, actions{ActScheduleRetry}},
	{states{CacheIIA}, events{EvPutAck, EvNack}, CacheI, actions{ActDeallocate}},
}

func directoryStates() []StateSpec {
	return []StateSpec{
		{Name: DirI, Description: "no cached copy", Stable: true},
		{Name: DirS, Description: "one or more read-only copies", Stable: true},
		{Name: DirM, Description: "one owner with write permission", Stable: true},
		{Name: DirISM, Description: "serving GetS from I, waiting for memory"},
		{Name: DirIMM, Description: "serving GetM from I, waiting for memory"},
		{Name: DirSSM, Description: "serving GetS from S, waiting for memory"},
		{Name: DirSMAM, Description: "serving GetM from S, waiting for acks " +
			"and memory"},
		{Name: DirSMA, Description: "serving GetM from S, waiting for acks"},
		{Name: DirSMM, Description: "serving GetM from S, waiting for memory"},
		{Name: DirMSD, Description: "serving GetS from M, waiting for " +
			"owner data"},
		{Name: DirMMD, Description: "serving GetM from M, waiting for " +
			"owner data"},
	}
}

var dirTransient = states{
	DirISM, DirIMM, DirSSM, DirSMAM, DirSMA, DirSMM, DirMSD, DirMMD,
}

// directoryTransitions builds the directory table. grantFromI is the edge
// taken when memory data for a GetS from I arrives, the only place where MSI
// and MESI directories differ.
func directoryTransitions(grantFromI TransitionSpec) []TransitionSpec {
	return []TransitionSpec{
		{states{DirI}, events{EvGetS}, DirISM, actions{ActRecordRequestor, ActReadMemory}},
		{states{DirI}, events{EvGetM}, DirIMM, actions{ActRecordRequestor, ActReadMemory}},
		{states{DirI, DirS, DirM}, events{EvPutMStale}, "", actions{ActSendPutAck}},

		grantFromI,
		{states{DirIMM}, events{EvMemData}, DirM, actions{ActSaveData, ActSendData, ActSetOwnerRequestor, ActFinish}},

		{states{DirS}, events{EvGetS}, DirSSM, actions{ActRecordRequestor, ActReadMemory}},
		{states{DirSSM}, events{EvMemData}, DirS, actions{ActSaveData, ActSendData, ActAddRequestorSharer, ActFinish}},
		{states{DirS}, events{EvGetM}, DirSMAM, actions{ActRecordRequestor, ActInvalidateSharers, ActReadMemory}},
		{states{DirS}, events{EvGetMSoleSharer}, DirSMM, actions{ActRecordRequestor, ActReadMemory}},

		{states{DirSMAM}, events{EvInvAck}, DirSMAM, actions{ActRecordAck}},
		{states{DirSMAM}, events{EvLastInvAck}, DirSMM, actions{ActRecordAck}},
		{states{DirSMAM}, events{EvMemData}, DirSMA, actions{ActSaveData}},
		{states{DirSMA}, events{EvInvAck}, DirSMA, actions{ActRecordAck}},
		{states{DirSMA}, events{EvLastInvAck}, DirM, actions{ActRecordAck, ActSendData, ActSetOwnerRequestor, ActFinish}},
		{states{DirSMM}, events{EvMemData}, DirM, actions{ActSaveData, ActSendData, ActSetOwnerRequestor, ActFinish}},

		{states{DirM}, events{EvGetS}, DirMSD, actions{ActRecordRequestor, ActFwdGetSToOwner}},
		{states{DirM}, events{EvGetM}, DirMMD, actions{ActRecordRequestor, ActFwdGetMToOwner}},
		{states{DirM}, events{EvPutMOwner}, DirI, actions{ActWriteMemory, ActClearOwner, ActSendPutAck}},
		{states{DirMSD}, events{EvOwnerData}, DirS, actions{
			ActSaveData, ActWriteMemory, ActSendData, ActAddOwnerSharer,
			ActClearOwner, ActAddRequestorSharer, ActFinish,
		}},
		{states{DirMMD}, events{EvOwnerData}, DirM, actions{
			ActSaveData, ActWriteMemory, ActSendData, ActSetOwnerRequestor,
			ActFinish,
		}},

		{dirTransient, directoryRequests, "", actions{ActSendNack}},
	}
}

// MSI returns the canonical MSI protocol with a blocking directory.
func MSI() *Protocol {
	cache := TableSpec{
		Name:         "MSI-L1Cache",
		Machine:      coherence.MachineL1Cache,
		DefaultState: CacheI,
		States:       cacheStates(false),
		Events: events{
			EvLoad, EvStore, EvReplacement, EvInv, EvFwdGetS, EvFwdGetM,
			EvData, EvPutAck, EvNack,
		},
		Actions:     CacheActions,
		Transitions: msiCacheTransitions,
	}

	dir := TableSpec{
		Name:         "MSI-Directory",
		Machine:      coherence.MachineDirectory,
		DefaultState: DirI,
		States:       directoryStates(),
		Events:       directoryEvents,
		Actions:      DirectoryActions,
		Transitions: directoryTransitions(TransitionSpec{
			states{DirISM}, events{EvMemData}, DirS,
			actions{ActSaveData, ActSendData, ActAddRequestorSharer, ActFinish},
		}),
	}

	return &Protocol{
		Name:        "MSI",
		Description: "three-state invalidation protocol with a blocking directory",
		Cache:       MustCompile(cache),
		Directory:   MustCompile(dir),
	}
}
