package integration_testing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Server(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite := newSuite(ctx)
	require.NotNil(t, suite)
	defer suite.cleanup()

	t.Run("root", func(t *testing.T) {
		resp, err := http.Get(serverEndpoint + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var index map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&index))
		require.Equal(t, "跑步分析系统API", index["message"])
	})

	t.Run("register login me", func(t *testing.T) {
		registerResp, err := http.Post(
			serverEndpoint+"/api/auth/register",
			"application/json",
			bytes.NewBufferString(`{"username":"runner","phone":"13800138000","password":"s3cr3tpass"}`),
		)
		require.NoError(t, err)
		defer registerResp.Body.Close()
		require.Equal(t, http.StatusCreated, registerResp.StatusCode)

		loginResp, err := http.Post(
			serverEndpoint+"/api/auth/login",
			"application/json",
			bytes.NewBufferString(`{"phone":"13800138000","password":"s3cr3tpass"}`),
		)
		require.NoError(t, err)
		defer loginResp.Body.Close()
		require.Equal(t, http.StatusOK, loginResp.StatusCode)

		var login struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&login))
		require.NotEmpty(t, login.AccessToken)
		require.Equal(t, "bearer", login.TokenType)

		meReq, err := http.NewRequest(http.MethodGet, serverEndpoint+"/api/auth/me", nil)
		require.NoError(t, err)
		meReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", login.AccessToken))

		meResp, err := http.DefaultClient.Do(meReq)
		require.NoError(t, err)
		defer meResp.Body.Close()
		require.Equal(t, http.StatusOK, meResp.StatusCode)

		meBytes, err := io.ReadAll(meResp.Body)
		require.NoError(t, err)
		require.Contains(t, string(meBytes), `"username":"runner"`)
	})

	t.Run("me without token", func(t *testing.T) {
		resp, err := http.Get(serverEndpoint + "/api/auth/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("exercise and statistics", func(t *testing.T) {
		addResp, err := http.Post(
			serverEndpoint+"/api/exercise",
			"application/json",
			bytes.NewBufferString(`{"userId":"user001","bandData":{"heartRate":150,"pace":5.5,"calories":320}}`),
		)
		require.NoError(t, err)
		defer addResp.Body.Close()
		require.Equal(t, http.StatusCreated, addResp.StatusCode)

		statsResp, err := http.Get(serverEndpoint + "/api/statistics?userId=user001")
		require.NoError(t, err)
		defer statsResp.Body.Close()
		require.Equal(t, http.StatusOK, statsResp.StatusCode)

		var stats struct {
			HeartRate struct {
				Avg float64 `json:"avg"`
			} `json:"heartRate"`
		}
		require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
		require.Equal(t, float64(150), stats.HeartRate.Avg)
	})
}
