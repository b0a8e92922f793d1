/*
Package errors provides semantic error types for entitymapper.

The package defines common error scenarios with specific types that can be
checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrNotFound        = errors.New("entity not found")
	    ErrAlreadyExists   = errors.New("entity already exists")
	    ErrInvalidInput    = errors.New("invalid input")
	    ErrConditionFailed = errors.New("condition check failed")
	    ErrNoIndexMap      = errors.New("no index map found for table")
	    ErrNotManaged      = errors.New("entity is not managed")
	    ErrInvalidState    = errors.New("invalid state")
	    ErrBackend         = errors.New("backend failure")
	)

A lookup that finds nothing is not an error: Find and GetReference return a nil
result with a nil error. NotFoundError is reserved for operations that need the
row to exist, such as Refresh.

Usage:

	// Guard a lazy load
	if err := proxy.EnsureProxy(user); err != nil {
	    if errors.IsNotManaged(err) {
	        // the entity was never attached to a persistence context
	    }
	    return err
	}

	// Backend failures keep the driver error
	var be *errors.BackendError
	if stderrors.As(err, &be) {
	    log.Printf("%s on %s: %v", be.Op, be.Table, be.Err)
	}

The error types implement the error interface and support wrapping,
making them compatible with Go's standard error handling patterns.
*/
package errors
