package store

import "github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"

var transitionMap = map[string][]string{
	"call_next":     {models.StatusWaiting},
	"start_serving": {models.StatusCalled},
	"complete":      {models.StatusServing},
	"no_show":       {models.StatusCalled},
	"recall":        {models.StatusNoShow},
	"cancel":        {models.StatusWaiting, models.StatusCalled},
	"announce":      {models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
