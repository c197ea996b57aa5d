package validator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acgs/agentbus/pkg/message"
	"github.com/acgs/agentbus/pkg/validator"
)

func TestStaticHash_Valid(t *testing.T) {
	sh := validator.NewStaticHash()
	m := message.New("a", "b", "a", message.TypeCommand)

	res, err := sh.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestStaticHash_WrongHash_MasksReason(t *testing.T) {
	sh := validator.NewStaticHash()
	m := message.New("a", "b", "a", message.TypeCommand)
	m.ConstitutionalHash = "deadbeefdeadbeef"

	res, err := sh.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "deadbeef…")
	assert.NotContains(t, res.Errors[0], "deadbeefdeadbeef")
}

func TestStaticHash_EmptyContent_Fails(t *testing.T) {
	sh := validator.NewStaticHash()
	m := message.New("a", "b", "a", message.TypeCommand)
	m.Content = nil

	res, err := sh.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestStaticHash_NonStrict_SkipsHashCheck(t *testing.T) {
	sh := &validator.StaticHash{Expected: message.StaticConstitutionalHash, Strict: false}
	m := message.New("a", "b", "a", message.TypeCommand)
	m.ConstitutionalHash = "wrong"

	res, err := sh.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestDynamicPolicy_DefaultRule(t *testing.T) {
	dp, err := validator.NewDynamicPolicy()
	require.NoError(t, err)

	m := message.New("a", "b", "a", message.TypeCommand)
	res, err := dp.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	m.ConstitutionalHash = "wrong"
	res, err = dp.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestDynamicPolicy_RegisterRequiresToken(t *testing.T) {
	dp, err := validator.NewDynamicPolicy()
	require.NoError(t, err)
	dp.RequireToken = true

	err = dp.Register("v2", `has_content`, "")
	assert.Error(t, err)

	err = dp.Register("v2", `has_content`, "secret-token")
	assert.NoError(t, err)
}

func TestOPA_Allow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"allow": true}})
	}))
	defer srv.Close()

	v := validator.NewOPA(srv.URL, 0)
	m := message.New("a", "b", "a", message.TypeCommand)

	res, err := v.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestOPA_Deny_IsFinalNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"allow": false, "reason": "OPA service unavailable"}})
	}))
	defer srv.Close()

	v := validator.NewOPA(srv.URL, 0)
	m := message.New("a", "b", "a", message.TypeCommand)

	res, err := v.Validate(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "OPA service unavailable")
}

func TestOPA_Unreachable_ReturnsTransientError(t *testing.T) {
	v := validator.NewOPA("http://127.0.0.1:1", 0)
	m := message.New("a", "b", "a", message.TypeCommand)

	res, err := v.Validate(context.Background(), m)
	assert.Nil(t, res)
	assert.Error(t, err)
	assert.False(t, message.IsDeterministic(err))
}
