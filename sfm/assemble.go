package sfm

import (
	"sync"

	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/hovavalon/gtsam/linear"
)

// LinearizeAll linearizes every factor at the given estimate, fanning the
// work out across the requested number of goroutines. Factors are
// independent, so no locking is needed beyond error collection. The returned
// slice is ordered like factors; inactive factors leave a nil entry.
func LinearizeAll(
	factors []*ReprojectionFactor,
	values *Values,
	parallelism int,
) ([]*linear.BinaryJacobianFactor, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	out := make([]*linear.BinaryJacobianFactor, len(factors))

	var wg sync.WaitGroup
	var errLock sync.Mutex
	var allErrs error
	idxChan := make(chan int)

	for worker := 0; worker < parallelism; worker++ {
		wg.Add(1)
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			for i := range idxChan {
				lf, err := factors[i].Linearize(values)
				if err != nil {
					errLock.Lock()
					allErrs = multierr.Combine(allErrs, err)
					errLock.Unlock()
					continue
				}
				out[i] = lf
			}
		})
	}
	for i := range factors {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()

	if allErrs != nil {
		return nil, allErrs
	}
	return out, nil
}

// UpdateHessianAll folds each linearized factor into the shared information
// matrix. Accumulation is sequential: the destination is shared mutable
// state and this call owns its write access for the duration. Nil entries
// (inactive factors) are skipped.
func UpdateHessianAll(
	factors []*linear.BinaryJacobianFactor,
	slots linear.Slots,
	info linear.SymmetricBlockMatrix,
) error {
	for _, f := range factors {
		if f == nil {
			continue
		}
		if err := f.UpdateHessian(slots, info); err != nil {
			return err
		}
	}
	return nil
}
