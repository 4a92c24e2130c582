package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/handlers/testutil"
	"github.com/learnhub/learnhub/internal/models"
)

type activeSession struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type auditEntry struct {
	UserID *string `json:"user_id"`
	Action string  `json:"action"`
	Result string  `json:"result"`
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SeedUser("sam", models.RoleStudent)
	student := env.Login("sam")

	w := env.Request(http.MethodGet, "/api/admin/sessions", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/sessions", nil, student.SessionToken)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/audit", nil, student.SessionToken)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestAdminListsAndEndsSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SeedUser("root", models.RoleAdmin)
	learner := env.SeedUser("lena", models.RoleStudent)
	env.SeedUser("tina", models.RoleTeacher)

	admin := env.Login("root")
	student := env.Login("lena")
	env.Login("tina")

	w := env.Request(http.MethodGet, "/api/admin/sessions?role=student", nil, admin.SessionToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var listed []activeSession
	testutil.DecodeInto(t, resp.Data, &listed)
	require.Len(t, listed, 1)
	require.Equal(t, learner.ID, listed[0].UserID)
	require.Equal(t, 1, resp.Meta.Total)

	w = env.Request(http.MethodGet, "/api/admin/sessions", nil, admin.SessionToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listed)
	require.Len(t, listed, 3)

	w = env.Request(http.MethodGet, "/api/admin/sessions?role=janitor", nil, admin.SessionToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	for i := 0; i < 2; i++ {
		w = env.Request(http.MethodPost, "/api/admin/users/"+learner.ID+"/sessions/end", nil, admin.SessionToken)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var ended struct {
			Ended bool `json:"ended"`
		}
		testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &ended)
		require.True(t, ended.Ended)
	}

	requireMe(t, env, student.SessionToken, http.StatusUnauthorized)
	requireMe(t, env, admin.SessionToken, http.StatusOK)
}

func TestAdminAuditListFiltersByUser(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SeedUser("root", models.RoleAdmin)
	learner := env.SeedUser("lars", models.RoleStudent)

	admin := env.Login("root")
	env.Login("lars")
	w := env.Request(http.MethodPost, "/api/auth/login", testutil.Credentials("lars", testutil.Password("lars")), "")
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/audit?user_id="+learner.ID+"&per_page=10", nil, admin.SessionToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var entries []auditEntry
	testutil.DecodeInto(t, resp.Data, &entries)
	require.Equal(t, 2, resp.Meta.Total)

	actions := map[string]string{}
	for _, entry := range entries {
		require.NotNil(t, entry.UserID)
		require.Equal(t, learner.ID, *entry.UserID)
		actions[entry.Action] = entry.Result
	}
	require.Equal(t, map[string]string{
		"session.created":  "success",
		"session.conflict": "failure",
	}, actions)
}
