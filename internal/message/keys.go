package message

// Key is an AppMessage key: the name used by the companion and the numeric
// id the watch firmware was built with.
type Key struct {
	Name string
	ID   int
}

// AppMessage keys.
var (
	KeyUpdate             = Key{"KEY_UPDATE", 0}
	KeyCurrentOrigin      = Key{"KEY_CURRENT_ORIGIN", 1}
	KeyCurrentDestination = Key{"KEY_CURRENT_DESTINATION", 2}
	KeyTrain1Time         = Key{"KEY_TRAIN1_TIME", 3}
	KeyTrain1Dest         = Key{"KEY_TRAIN1_DEST", 4}
	KeyTrain1Platform     = Key{"KEY_TRAIN1_PLATFORM", 5}
	KeyTrain2Time         = Key{"KEY_TRAIN2_TIME", 6}
	KeyTrain3Time         = Key{"KEY_TRAIN3_TIME", 7}
	KeyTrain1IsCanceled   = Key{"KEY_TRAIN1_IS_CANCELED", 8}
	KeyCustomisedDays     = Key{"CUSTOMISED_DAYS", 9}
	KeyUseMonday          = Key{"USE_MONDAY", 10}
	KeyUseTuesday         = Key{"USE_TUESDAY", 11}
	KeyUseWednesday       = Key{"USE_WEDNESDAY", 12}
	KeyUseThursday        = Key{"USE_THURSDAY", 13}
	KeyUseFriday          = Key{"USE_FRIDAY", 14}
	KeyUseSaturday        = Key{"USE_SATURDAY", 15}
	KeyUseSunday          = Key{"USE_SUNDAY", 16}
	KeyCustomisedTimes    = Key{"CUSTOMISED_TIMES", 17}
	KeyMorningStart       = Key{"MORNING_START", 18}
	KeyMorningEnd         = Key{"MORNING_END", 19}
	KeyAfternoonStart     = Key{"AFTERNOON_START", 20}
	KeyAfternoonEnd       = Key{"AFTERNOON_END", 21}
	KeyTrain2Dest         = Key{"KEY_TRAIN2_DEST", 22}
	KeyTrain3Dest         = Key{"KEY_TRAIN3_DEST", 23}
	KeyTrain2IsCanceled   = Key{"KEY_TRAIN2_IS_CANCELED", 24}
	KeyTrain3IsCanceled   = Key{"KEY_TRAIN3_IS_CANCELED", 25}
	KeyTimeDiffFromUTC    = Key{"TIME_DIFF_FROM_UTC", 26}
	KeyLastRequestFailed  = Key{"KEY_LAST_REQUEST_FAILED", 27}
	KeyUpdateOnlyOnTap    = Key{"KEY_UPDATE_ONLY_ON_TAP", 28}
)

// Keys lists every key in id order.
var Keys = []Key{
	KeyUpdate,
	KeyCurrentOrigin,
	KeyCurrentDestination,
	KeyTrain1Time,
	KeyTrain1Dest,
	KeyTrain1Platform,
	KeyTrain2Time,
	KeyTrain3Time,
	KeyTrain1IsCanceled,
	KeyCustomisedDays,
	KeyUseMonday,
	KeyUseTuesday,
	KeyUseWednesday,
	KeyUseThursday,
	KeyUseFriday,
	KeyUseSaturday,
	KeyUseSunday,
	KeyCustomisedTimes,
	KeyMorningStart,
	KeyMorningEnd,
	KeyAfternoonStart,
	KeyAfternoonEnd,
	KeyTrain2Dest,
	KeyTrain3Dest,
	KeyTrain2IsCanceled,
	KeyTrain3IsCanceled,
	KeyTimeDiffFromUTC,
	KeyLastRequestFailed,
	KeyUpdateOnlyOnTap,
}

var byName = func() map[string]Key {
	m := make(map[string]Key, len(Keys))
	for _, k := range Keys {
		m[k.Name] = k
	}
	return m
}()

// KeyID returns the numeric id for a key name.
func KeyID(name string) (int, bool) {
	k, ok := byName[name]
	return k.ID, ok
}
