// internal/mocks/mocks_test.go
package mocks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/mocks"
	"github.com/xkilldash9x/authprobe/internal/reporting"
)

func TestMockConfigFrom(t *testing.T) {
	cfg := config.NewDefaultConfig()
	m := mocks.NewMockConfigFrom(cfg)

	var iface config.Interface = m
	assert.Equal(t, cfg.Target(), iface.Target())
	assert.Equal(t, "admin", iface.Credentials().Username)
	m.AssertCalled(t, "Target")
	m.AssertNotCalled(t, "Database")
}

func TestMockSession(t *testing.T) {
	ctx := context.Background()
	s := new(mocks.MockSession)
	sel := browser.Name("username")

	s.On("IsInteractable", ctx, sel).Return(true, nil).Once()
	s.On("Cookies", ctx).Return(nil, nil).Once()
	s.On("Screenshot", ctx).Return(nil, browser.ErrSessionUnavailable).Once()
	s.On("AlertText", ctx).Return("XSS", true, nil).Once()

	ok, err := s.IsInteractable(ctx, sel)
	require.NoError(t, err)
	assert.True(t, ok)

	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	assert.Nil(t, cookies)

	_, err = s.Screenshot(ctx)
	assert.ErrorIs(t, err, browser.ErrSessionUnavailable)

	text, open, err := s.AlertText(ctx)
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "XSS", text)

	s.AssertExpectations(t)
}

func TestMockStore(t *testing.T) {
	ctx := context.Background()
	st := new(mocks.MockStore)
	st.On("SaveRun", ctx, mock.AnythingOfType("*reporting.Report")).Return(nil)
	st.On("LoadRun", ctx, "missing").Return(nil, errors.New("run not found"))

	require.NoError(t, st.SaveRun(ctx, &reporting.Report{RunID: "r"}))
	r, err := st.LoadRun(ctx, "missing")
	assert.Nil(t, r)
	assert.EqualError(t, err, "run not found")
	st.AssertExpectations(t)
}
