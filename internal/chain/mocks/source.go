package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	chain "github.com/tradelayer/tradelayer/internal/chain"
)

// Source is a mock implementation of chain.Source.
type Source struct {
	mock.Mock
}

var _ chain.Source = (*Source)(nil)

// TipHeight provides a mock function with given fields: ctx
func (_m *Source) TipHeight(ctx context.Context) (int64, error) {
	ret := _m.Called(ctx)

	var r0 int64
	if rf, ok := ret.Get(0).(func(context.Context) int64); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(int64)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// BlockAt provides a mock function with given fields: ctx, height
func (_m *Source) BlockAt(ctx context.Context, height int64) (*chain.Block, error) {
	ret := _m.Called(ctx, height)

	var r0 *chain.Block
	if rf, ok := ret.Get(0).(func(context.Context, int64) *chain.Block); ok {
		r0 = rf(ctx, height)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*chain.Block)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, int64) error); ok {
		r1 = rf(ctx, height)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
