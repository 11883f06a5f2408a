package store

import "behavior-backend/internal/apperr"

// BatchFailure is one id a batch operation could not process.
type BatchFailure struct {
	ID    uint   `json:"id"`
	Error string `json:"error"`
}

// BatchResult reports a continue-on-error batch. Earlier successes stay
// committed when a later id fails.
type BatchResult struct {
	Deleted []uint         `json:"deleted"`
	Failed  []BatchFailure `json:"failed"`
}

// RunBatch applies fn to every id in order and collects the outcome.
func RunBatch(ids []uint, fn func(id uint) error) BatchResult {
	res := BatchResult{Deleted: []uint{}, Failed: []BatchFailure{}}
	for _, id := range ids {
		if err := fn(id); err != nil {
			res.Failed = append(res.Failed, BatchFailure{ID: id, Error: apperr.MessageOf(err)})
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	return res
}
