// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides parallel stochastic solvers for L2-regularized
// logistic regression over sparse data.
//
// # Overview
//
// This package contains:
//   - SGD: stochastic gradient descent with sparse updates
//   - SVRG: stochastic variance-reduced gradient
//   - Oracle interface plus the logistic regression and mini-batch oracles
//   - Dense and Sparse vectors used for parameters and examples
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/svrg/dataset"
//	    "github.com/born-ml/svrg/optim"
//	)
//
//	func main() {
//	    ds, err := dataset.Load("train.bin", dataset.LoadOptions{Normalize: true})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    o, err := optim.NewLogisticRegression[optim.SVRGParams](
//	        ds.Examples, ds.Labels, ds.NumFeatures,
//	        optim.LogisticConfig{L2: 1e-4},
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    opts := optim.DefaultOptions()
//	    opts.StepSize = 0.5
//	    opts.MaxEpochs = 20
//	    opts.ParallelMode = optim.LockFree
//
//	    sol, err := optim.NewSVRG(opts).Solve(o)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(sol.Objective)
//	}
//
// # Parameter Types
//
// SGD works on *Dense parameters. SVRG folds the dense average-gradient
// term of its updates into a scalar, so its oracles are instantiated with
// SVRGParams:
//
//	sgdOracle, _ := optim.NewLogisticRegression[*optim.Dense](x, y, d, cfg)
//	svrgOracle, _ := optim.NewLogisticRegression[optim.SVRGParams](x, y, d, cfg)
//
// # Parallel Modes
//
// Workers apply updates to one shared parameter vector:
//
//	FreeForAll  unsynchronized adds, concurrent updates may be lost
//	LockFree    atomic add per component
//	Locked      one spin lock around each whole update
package optim
