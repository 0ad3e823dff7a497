package protocol

import "github.com/sarchlab/rubysim/coherence"

var mesiExclusiveTransitions = []TransitionSpec{
	{states{CacheISD}, events{EvDataE}, CacheE, actions{ActWriteData, ActAckTxn, ActPerformAccess}},
	{states{CacheE}, events{EvLoad}, CacheE, actions{ActPerformAccess}},
	{states{CacheE}, events{EvStore}, CacheM, actions{ActPerformAccess}},
	{states{CacheE}, events{EvReplacement}, CacheMIA, actions{ActIssuePutM}},
	{states{CacheE}, events{EvFwdGetS}, CacheS, actions{ActSendOwnerData}},
	{states{CacheE}, events{EvFwdGetM}, CacheI, actions{ActSendOwnerData, ActDeallocate}},
}

// MESI returns the MESI variant. Reads that find no other copy are granted
// in E, and E upgrades to M without a message.
func MESI() *Protocol {
	transitions := make([]TransitionSpec, 0,
		len(msiCacheTransitions)+len(mesiExclusiveTransitions))
	transitions = append(transitions, msiCacheTransitions...)
	transitions = append(transitions, mesiExclusiveTransitions...)

	cache := TableSpec{
		Name:         "MESI-L1Cache",
		Machine:      coherence.MachineL1Cache,
		DefaultState: CacheI,
		States:       cacheStates(true),
		Events: events{
			EvLoad, EvStore, EvReplacement, EvInv, EvFwdGetS, EvFwdGetM,
			EvData, EvDataE, EvPutAck, EvNack,
		},
		Actions:     CacheActions,
		Transitions: transitions,
	}

	dir := TableSpec{
		Name:         "MESI-Directory",
		Machine:      coherence.MachineDirectory,
		DefaultState: DirI,
		States:       directoryStates(),
		Events:       directoryEvents,
		Actions:      DirectoryActions,
		Transitions: directoryTransitions(TransitionSpec{
			states{DirISM}, events{EvMemData}, DirM,
			actions{ActSaveData, ActSendExclusiveData, ActSetOwnerRequestor, ActFinish},
		}),
	}

	return &Protocol{
		Name:        "MESI",
		Description: "MSI plus a clean exclusive state granted on uncached reads",
		Cache:       MustCompile(cache),
		Directory:   MustCompile(dir),
	}
}
