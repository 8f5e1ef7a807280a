package reconciler

import (
	"sync"

	"golang-pv-reconciliation/internal/models"
	"golang-pv-reconciliation/internal/projector"
	"golang-pv-reconciliation/pkg/errors"
)

// projectSources projects both sides concurrently. When both fail, the
// left error is returned.
func (rs *ReconciliationService) projectSources(request *ReconciliationRequest, leftName, rightName string) (*projector.Projection, *projector.Projection, error) {
	sources := [2]Source{request.Left, request.Right}
	names := [2]string{leftName, rightName}

	var projections [2]*projector.Projection
	var errs [2]error
	var wg sync.WaitGroup

	for i := range sources {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = errors.InternalError(errors.CodeUnexpectedError, "projection of "+names[i], nil).
						WithContext("panic", r)
				}
			}()

			p, err := rs.projector.Project(sources[i].Table, sources[i].Hints)
			if err != nil {
				errs[i] = withDataset(err, names[i])
				return
			}
			p.Dataset = names[i]
			projections[i] = p
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return projections[0], projections[1], nil
}

// withDataset tags detection errors with the dataset name used in reports
func withDataset(err error, name string) error {
	if re, ok := errors.AsReconcilerError(err); ok {
		return re.WithContext(errors.ContextDataset, name)
	}
	return errors.ReconciliationError(errors.CodeProjectionFailed, "projection of "+name, err)
}

// filterByDateWindow keeps records whose canonical date lies in [start, end].
// Canonical dates are YYYY-MM-DD, so string order is date order.
func filterByDateWindow(records []models.NormalizedRecord, start, end string) ([]models.NormalizedRecord, int) {
	kept := make([]models.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if start != "" && r.Date < start {
			continue
		}
		if end != "" && r.Date > end {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}
