package store

import "github.com/F1kro/Ngantri-DPMPTSP/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"recall":    {models.StatusInProgress},
	"complete":  {models.StatusInProgress},
	"cancel":    {models.StatusWaiting},
}

// AllowedStatuses returns the statuses a booking must be in for the
// action to apply. Unknown actions return nil.
func AllowedStatuses(action string) []string {
	return transitionMap[action]
}

func ValidTransition(action, fromStatus string) bool {
	for _, status := range AllowedStatuses(action) {
		if status == fromStatus {
			return true
		}
	}
	return false
}
