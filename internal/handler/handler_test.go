package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/warband/internal/auth"
	"github.com/freeeve/warband/internal/model"
	"github.com/freeeve/warband/internal/ruleset"
	"github.com/freeeve/warband/internal/service"
	"github.com/freeeve/warband/pkg/actionlog"
)

// --- Mock Repositories ---

type mockBattleRepo struct {
	mu      sync.Mutex
	battles map[string]*model.Battle
	order   []string
}

func newMockBattleRepo() *mockBattleRepo {
	return &mockBattleRepo{battles: make(map[string]*model.Battle)}
}

func (m *mockBattleRepo) Create(_ context.Context, b *model.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.CreatedAt = time.Now()
	cp := *b
	m.battles[b.ID] = &cp
	m.order = append(m.order, b.ID)
	return nil
}

func (m *mockBattleRepo) FindByID(_ context.Context, id string) (*model.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.battles[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBattleRepo) ListByGame(_ context.Context, gameID string) ([]model.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Battle
	for _, id := range m.order {
		if b := m.battles[id]; b.GameID == gameID {
			out = append(out, *b)
		}
	}
	return out, nil
}

type mockTurnLog struct {
	mu      sync.Mutex
	seqs    map[string]int
	actions map[string][]json.RawMessage
	acks    map[string]map[string]bool
}

func newMockTurnLog() *mockTurnLog {
	return &mockTurnLog{
		seqs:    make(map[string]int),
		actions: make(map[string][]json.RawMessage),
		acks:    make(map[string]map[string]bool),
	}
}

func turnKey(gameID string, turn int) string { return gameID + ":" + strconv.Itoa(turn) }

func (m *mockTurnLog) NextSeq(_ context.Context, gameID string, turn int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := turnKey(gameID, turn)
	n := m.seqs[k]
	m.seqs[k] = n + 1
	return n, nil
}

func (m *mockTurnLog) AppendAction(_ context.Context, gameID string, turn int, record json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := turnKey(gameID, turn)
	m.actions[k] = append(m.actions[k], record)
	return nil
}

func (m *mockTurnLog) Actions(_ context.Context, gameID string, turn int) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.actions[turnKey(gameID, turn)]...), nil
}

func (m *mockTurnLog) AckReplay(_ context.Context, gameID, battleID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := gameID + ":" + battleID
	if m.acks[k] == nil {
		m.acks[k] = make(map[string]bool)
	}
	m.acks[k][userID] = true
	return nil
}

func (m *mockTurnLog) ReplayAcks(_ context.Context, gameID, battleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for u := range m.acks[gameID+":"+battleID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// --- Helpers ---

type testEnv struct {
	battles *BattleHandler
	turns   *TurnHandler
	hub     *Hub
}

func newTestEnv() *testEnv {
	hub := NewHub()
	turns := service.NewTurnLogService(newMockTurnLog(), hub)
	battles := service.NewBattleService(newMockBattleRepo(), turns, ruleset.Default(), hub, service.BattleOptions{Seed: 11})
	return &testEnv{
		battles: NewBattleHandler(battles),
		turns:   NewTurnHandler(turns),
		hub:     hub,
	}
}

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.WithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

const skirmishSetup = `{
	"attackers": [{"id": "red-1", "owner": "red", "pos": {"x": 3, "y": 4}, "units": [
		{"id": 1, "type": "heavy_infantry"},
		{"id": 2, "type": "heavy_infantry"},
		{"id": 3, "type": "cavalry"}
	]}],
	"defenders": [{"id": "blue-1", "owner": "blue", "pos": {"x": 4, "y": 4}, "units": [
		{"id": 10, "type": "pikemen"},
		{"id": 11, "type": "light_infantry", "hp": 1}
	]}],
	"tiles": [
		{"pos": {"x": 3, "y": 4}, "terrain": "open"},
		{"pos": {"x": 4, "y": 4}, "terrain": "hills", "structure": "city", "defense": 2}
	]
}`

func battleBody(extra string) string {
	return strings.TrimSuffix(strings.TrimSpace(skirmishSetup), "}") + "," + extra + "}"
}

func resolveBattle(t *testing.T, env *testEnv, gameID, userID string) service.BattleResult {
	t.Helper()
	req := reqWithUserID(http.MethodPost, "/games/"+gameID+"/battles", battleBody(`"turn": 2`), userID)
	req.SetPathValue("id", gameID)
	rec := httptest.NewRecorder()
	env.battles.Resolve(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("resolve: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.BattleResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

// --- Battle Handler Tests ---

func TestResolveBattle(t *testing.T) {
	env := newTestEnv()
	res := resolveBattle(t, env, "game-1", "alice")

	if res.Battle == nil || res.Battle.ID == "" {
		t.Fatal("expected a stored battle")
	}
	if res.Battle.ResolverID != "alice" {
		t.Errorf("expected resolver alice, got %s", res.Battle.ResolverID)
	}
	if res.Outcome == "undecided" {
		t.Error("live fight should be decided")
	}
	if len(res.Events) == 0 {
		t.Error("expected events")
	}
}

func TestResolveEvaluationReturns200(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodPost, "/games/game-1/battles", battleBody(`"evaluation": true`), "alice")
	req.SetPathValue("id", "game-1")
	rec := httptest.NewRecorder()
	env.battles.Resolve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.BattleResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Battle != nil {
		t.Error("evaluation fights should not be stored")
	}
	if res.Kind != "evaluation" {
		t.Errorf("expected evaluation kind, got %s", res.Kind)
	}
}

func TestResolveInvalidSetup(t *testing.T) {
	env := newTestEnv()
	body := `{"attackers": [{"id": "a", "units": [{"id": 1, "type": "balrog"}]}], "defenders": [{"id": "d", "units": [{"id": 2, "type": "hero"}]}]}`
	req := reqWithUserID(http.MethodPost, "/games/game-1/battles", body, "alice")
	req.SetPathValue("id", "game-1")
	rec := httptest.NewRecorder()
	env.battles.Resolve(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestResolveBadJSON(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodPost, "/games/game-1/battles", "not json", "alice")
	req.SetPathValue("id", "game-1")
	rec := httptest.NewRecorder()
	env.battles.Resolve(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListBattles(t *testing.T) {
	env := newTestEnv()
	resolveBattle(t, env, "game-1", "alice")
	resolveBattle(t, env, "game-1", "bob")
	resolveBattle(t, env, "game-2", "alice")

	req := reqWithUserID(http.MethodGet, "/games/game-1/battles", "", "alice")
	req.SetPathValue("id", "game-1")
	rec := httptest.NewRecorder()
	env.battles.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var battles []model.Battle
	json.Unmarshal(rec.Body.Bytes(), &battles)
	if len(battles) != 2 {
		t.Errorf("expected 2 battles, got %d", len(battles))
	}
}

func TestListBattlesEmpty(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodGet, "/games/none/battles", "", "alice")
	req.SetPathValue("id", "none")
	rec := httptest.NewRecorder()
	env.battles.List(rec, req)

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestGetBattleNotFound(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodGet, "/battles/missing", "", "alice")
	req.SetPathValue("battleId", "missing")
	rec := httptest.NewRecorder()
	env.battles.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReplayStoredSetup(t *testing.T) {
	env := newTestEnv()
	live := resolveBattle(t, env, "game-1", "alice")

	req := reqWithUserID(http.MethodPost, "/battles/"+live.Battle.ID+"/replay", "", "bob")
	req.SetPathValue("battleId", live.Battle.ID)
	rec := httptest.NewRecorder()
	env.battles.Replay(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.ReplayResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Outcome != live.Outcome {
		t.Errorf("replay reached %s, live %s", res.Outcome, live.Outcome)
	}
	if len(res.Acks) != 1 || res.Acks[0] != "bob" {
		t.Errorf("expected bob's ack, got %v", res.Acks)
	}

	get := reqWithUserID(http.MethodGet, "/battles/"+live.Battle.ID, "", "alice")
	get.SetPathValue("battleId", live.Battle.ID)
	rec = httptest.NewRecorder()
	env.battles.Get(rec, get)
	var b model.Battle
	json.Unmarshal(rec.Body.Bytes(), &b)
	if len(b.Acks) != 1 {
		t.Errorf("expected stored ack, got %v", b.Acks)
	}
}

func TestReplayOwnSetup(t *testing.T) {
	env := newTestEnv()
	live := resolveBattle(t, env, "game-1", "alice")

	req := reqWithUserID(http.MethodPost, "/battles/"+live.Battle.ID+"/replay", skirmishSetup, "bob")
	req.SetPathValue("battleId", live.Battle.ID)
	rec := httptest.NewRecorder()
	env.battles.Replay(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReplayDivergedStateConflicts(t *testing.T) {
	env := newTestEnv()
	live := resolveBattle(t, env, "game-1", "alice")

	// Bob's copy has different unit ids, so the log names units he does not have.
	diverged := strings.NewReplacer(`"id": 10,`, `"id": 40,`, `"id": 11,`, `"id": 41,`).Replace(skirmishSetup)
	req := reqWithUserID(http.MethodPost, "/battles/"+live.Battle.ID+"/replay", diverged, "bob")
	req.SetPathValue("battleId", live.Battle.ID)
	rec := httptest.NewRecorder()
	env.battles.Replay(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReplayMissingBattle(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodPost, "/battles/nope/replay", "", "bob")
	req.SetPathValue("battleId", "nope")
	rec := httptest.NewRecorder()
	env.battles.Replay(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestResolveBroadcastsToPeers(t *testing.T) {
	env := newTestEnv()
	bob := newTestConn("bob")
	env.hub.Register(bob)
	defer env.hub.Unregister(bob)
	env.hub.Subscribe(bob, "game-1")
	drain(t, bob)

	resolveBattle(t, env, "game-1", "alice")

	types := eventTypes(drain(t, bob))
	want := map[string]bool{service.EventBattleResolved: false, service.EventTurnAction: false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("bob did not receive %s (got %v)", typ, types)
		}
	}
}

func TestSimulate(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodPost, "/simulations", battleBody(`"fights": 25, "workers": 4, "seed": 3`), "alice")
	rec := httptest.NewRecorder()
	env.battles.Simulate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report service.SimulationReport
	json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Fights != 25 {
		t.Errorf("expected 25 fights, got %d", report.Fights)
	}
	if report.AttackerWins+report.DefenderWins != 25 {
		t.Errorf("every fight should be decided: %+v", report)
	}
	if report.ReplayMismatches != 0 {
		t.Errorf("expected no mismatches, got %d", report.ReplayMismatches)
	}
}

func TestSimulateTooMany(t *testing.T) {
	env := newTestEnv()
	req := reqWithUserID(http.MethodPost, "/simulations", battleBody(`"fights": 1000000`), "alice")
	rec := httptest.NewRecorder()
	env.battles.Simulate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestUnits(t *testing.T) {
	env := newTestEnv()
	rec := httptest.NewRecorder()
	env.battles.Units(rec, httptest.NewRequest(http.MethodGet, "/units", nil))

	var out struct {
		FightOrder []string       `json:"fight_order"`
		Units      []unitTypeView `json:"units"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.FightOrder) == 0 {
		t.Error("expected a fight order")
	}
	found := false
	for _, u := range out.Units {
		if u.Name == "pikemen" {
			found = true
			if len(u.Abilities) == 0 {
				t.Error("pikemen should list abilities")
			}
		}
	}
	if !found {
		t.Error("pikemen missing from catalog")
	}
}

// --- Turn Handler Tests ---

func appendAction(env *testEnv, gameID, turn, body, userID string) *httptest.ResponseRecorder {
	req := reqWithUserID(http.MethodPost, "/games/"+gameID+"/turns/"+turn+"/actions", body, userID)
	req.SetPathValue("id", gameID)
	req.SetPathValue("turn", turn)
	rec := httptest.NewRecorder()
	env.turns.Append(rec, req)
	return rec
}

func TestAppendAndListActions(t *testing.T) {
	env := newTestEnv()

	rec := appendAction(env, "game-1", "4", `{"kind":"move","data":{"group_id":"red-1","path":[{"x":1,"y":1},{"x":2,"y":1}]}}`, "alice")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = appendAction(env, "game-1", "4", `{"kind":"end_turn"}`, "alice")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req := reqWithUserID(http.MethodGet, "/games/game-1/turns/4/actions", "", "bob")
	req.SetPathValue("id", "game-1")
	req.SetPathValue("turn", "4")
	rec = httptest.NewRecorder()
	env.turns.List(rec, req)

	var records []actionlog.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Seq != 0 || records[1].Seq != 1 {
		t.Errorf("unexpected seqs %d, %d", records[0].Seq, records[1].Seq)
	}
	end, ok := records[1].Action.(actionlog.EndTurn)
	if !ok || end.Party != "alice" {
		t.Errorf("expected alice's end of turn, got %#v", records[1].Action)
	}
}

func TestAppendActionErrors(t *testing.T) {
	env := newTestEnv()
	tests := []struct {
		name string
		turn string
		body string
		want int
	}{
		{"bad json", "1", `nope`, http.StatusBadRequest},
		{"bad turn", "x", `{"kind":"end_turn"}`, http.StatusBadRequest},
		{"negative turn", "-1", `{"kind":"end_turn"}`, http.StatusBadRequest},
		{"unknown kind", "1", `{"kind":"teleport","data":{}}`, http.StatusBadRequest},
		{"malformed data", "1", `{"kind":"move","data":{"group_id":5}}`, http.StatusBadRequest},
		{"short path", "1", `{"kind":"move","data":{"group_id":"g","path":[{"x":1,"y":1}]}}`, http.StatusUnprocessableEntity},
		{"client fight", "1", `{"kind":"fight","data":{"battle_id":"b","attackers":["a"],"defenders":["d"]}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := appendAction(env, "game-1", tt.turn, tt.body, "alice")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

// --- Peers ---

func TestPeersEndpoint(t *testing.T) {
	env := newTestEnv()
	c := newTestConn("carol")
	env.hub.Register(c)
	defer env.hub.Unregister(c)
	env.hub.Subscribe(c, "game-9")

	h := NewWSHandler(env.hub, nil)
	req := httptest.NewRequest(http.MethodGet, "/games/game-9/peers", nil)
	req.SetPathValue("id", "game-9")
	rec := httptest.NewRecorder()
	h.Peers(rec, req)

	var out map[string][]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out["peers"]) != 1 || out["peers"][0] != "carol" {
		t.Errorf("expected [carol], got %v", out["peers"])
	}
}

// --- Auth Handler Tests ---

func TestDevLoginDisabled(t *testing.T) {
	h := NewAuthHandler(auth.NewJWTManager("test-secret"), false)
	rec := httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/dev?name=alice", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDevLogin(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(jwtMgr, true)
	rec := httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/dev?name=alice", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &tokens)
	claims, err := jwtMgr.ValidateFor(tokens.AccessToken, auth.UseAccess)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "alice" {
		t.Errorf("expected alice, got %s", claims.UserID)
	}
}

func TestDevLoginBadName(t *testing.T) {
	h := NewAuthHandler(auth.NewJWTManager("test-secret"), true)
	for _, q := range []string{"", "?name=", "?name=a%20b", "?name=" + strings.Repeat("x", 40)} {
		rec := httptest.NewRecorder()
		h.DevLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/dev"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestRefreshTokenValid(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(jwtMgr, false)

	refresh, _ := jwtMgr.GenerateRefreshToken("user-1")
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, refresh)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &tokens)
	if tokens.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(jwtMgr, false)

	access, _ := jwtMgr.GenerateAccessToken("user-1")
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, access)
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshTokenBadBody(t *testing.T) {
	h := NewAuthHandler(auth.NewJWTManager("test-secret"), false)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
