package core

import (
	"errors"
)

// Domain errors - centralized error definitions
var (
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrNotFitted        = errors.New("model has not been fitted")
	ErrSingularDesign   = errors.New("design matrix is singular")
)
