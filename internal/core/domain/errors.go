package domain

import "errors"

var (
	ErrSaleNotFound     = errors.New("time sale not found")
	ErrNotInWindow      = errors.New("time sale is not in its sale period")
	ErrSoldOut          = errors.New("time sale is sold out")
	ErrDuplicateRequest = errors.New("purchase request already fulfilled")
)
