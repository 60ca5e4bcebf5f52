package screens

import (
	"errors"
	"net/http"

	"soilgate/auth"
	"soilgate/middlewares"
	"soilgate/models"
	"soilgate/soil/cache"
	"soilgate/soil/decision"
	"soilgate/soil/history"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// playerKey はリクエストのゲームIDとPrincipalからキャッシュのキーを決めます。
// 他のゲームを指定した場合は ok=false です。
func (a *App) playerKey(c *gin.Context) (cache.Key, bool) {
	principal, ok := middlewares.GetPrincipal(c)
	if !ok {
		c.Redirect(http.StatusFound, middlewares.LocalizedPath(c, auth.UnauthenticatedRoute))
		c.Abort()
		return cache.Key{}, false
	}

	gameID := c.Query("gameId")
	if gameID == "" {
		gameID = c.Param("gameId")
	}
	if gameID == "" {
		gameID = principal.GameID
	}
	playerID := c.Param("playerId")

	if gameID != principal.GameID || (playerID != "" && playerID != principal.ID) {
		a.Logger.Warn("Player requested a foreign game",
			zap.String("userID", principal.ID), zap.String("gameID", gameID))
		c.JSON(http.StatusForbidden, gin.H{
			"status":       "forbidden",
			"landingRoute": middlewares.LocalizedPath(c, auth.Resolve(principal).LandingRoute),
		})
		c.Abort()
		return cache.Key{}, false
	}
	return cache.Key{GameID: gameID, PlayerID: principal.ID}, true
}

// entry はキャッシュ済みの状態を返し、なければ取得します。
func (a *App) entry(c *gin.Context, key cache.Key, refresh bool) (cache.Entry, error) {
	if !refresh {
		if e, ok := a.Cache.Get(key); ok {
			return e, nil
		}
	}
	return a.Cache.Load(backendContext(c), key)
}

func (a *App) builder(key cache.Key, e cache.Entry) *decision.Builder {
	return a.Decisions.For(key.GameID, key.PlayerID, e.Player.CurrentRound)
}

// GameBoard はゲーム画面に必要な状態をまとめて返します。
func (a *App) GameBoard(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}

	e, err := a.entry(c, key, c.Query("refresh") == "true")
	if err != nil {
		// 取得に失敗しても以前の状態があれば一緒に返す
		var ferr *models.FetchError
		if prev, ok := a.Cache.Get(key); ok && errors.As(err, &ferr) {
			a.Logger.Warn("Serving cached game state after fetch failure", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"status": "fetch_error",
				"retry":  true,
				"game":   prev.Game,
				"player": prev.Player,
			})
			return
		}
		a.respondError(c, err)
		return
	}

	rounds := history.Rounds(e.Player)
	res := gin.H{
		"status":       "success",
		"game":         e.Game,
		"player":       e.Player,
		"currentRound": e.Player.CurrentRound,
		"version":      e.Version,
		"decision":     a.builder(key, e).Build(),
		"finance":      history.Finance(rounds),
	}
	if e.Game.Config.AdvisorEnabled {
		res["insights"] = history.Insights(rounds, a.Thresholds)
	}
	c.JSON(http.StatusOK, res)
}

// GetDecision は組み立て中の決定を返します。
func (a *App) GetDecision(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}
	b := a.builder(key, e)
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"round":    b.Round(),
		"decision": b.Build(),
	})
}

// ParcelsRequest は区画の作物の変更です。Crop が空の場合は設定を取り消します。
type ParcelsRequest struct {
	Start int             `json:"start"`
	End   *int            `json:"end"`
	Crop  models.CropType `json:"crop"`
}

// PutParcels は区画の範囲に作物を設定します。
func (a *App) PutParcels(c *gin.Context) {
	var req ParcelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Logger.Error("Failed to bind parcels request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": "Invalid request body"})
		return
	}

	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}
	b := a.builder(key, e)

	end := req.Start
	if req.End != nil {
		end = *req.End
	}
	if req.Crop == "" {
		err = clearRange(b, req.Start, end)
	} else {
		err = b.SetRange(req.Start, end, req.Crop)
	}
	if err != nil {
		a.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "round": b.Round(), "decision": b.Build()})
}

func clearRange(b *decision.Builder, start, end int) error {
	if start > end {
		return &models.ValidationError{Field: "parcels", Reason: "start is after end"}
	}
	// 範囲全体を先に検証
	for _, i := range []int{start, end} {
		if i < 0 || i >= models.ParcelCount {
			return &models.ValidationError{Field: "parcels", Reason: "index outside parcel range"}
		}
	}
	for i := start; i <= end; i++ {
		if err := b.Clear(i); err != nil {
			return err
		}
	}
	return nil
}

// DecisionRequest は区画以外の決定です。指定されたフィールドだけを変更します。
type DecisionRequest struct {
	Machines    *float64                 `json:"machines"`
	Fertilizer  *bool                    `json:"fertilizer"`
	PriceFixing map[models.CropType]bool `json:"priceFixing"`
}

// PutDecision は機械、肥料、価格固定の設定を変更します。
func (a *App) PutDecision(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Logger.Error("Failed to bind decision request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "validation_error", "error": "Invalid request body"})
		return
	}

	// すべて検証してから変更する
	if req.Machines != nil && *req.Machines < 0 {
		a.respondError(c, &models.ValidationError{Field: "machines", Reason: "must not be negative"})
		return
	}
	for crop := range req.PriceFixing {
		if !crop.Valid() {
			a.respondError(c, &models.ValidationError{Field: "priceFixing", Reason: "unknown crop " + string(crop)})
			return
		}
	}

	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}
	b := a.builder(key, e)

	if req.Machines != nil {
		if err := b.SetMachines(*req.Machines); err != nil {
			a.respondError(c, err)
			return
		}
	}
	if req.Fertilizer != nil {
		b.SetFertilizer(*req.Fertilizer)
	}
	for crop, on := range req.PriceFixing {
		if err := b.SetPriceFixing(crop, on); err != nil {
			a.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "round": b.Round(), "decision": b.Build()})
}

// ResetDecision は組み立て中の決定を破棄します。
func (a *App) ResetDecision(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	if b, ok := a.Decisions.Peek(key.GameID, key.PlayerID); ok {
		b.Reset()
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// SubmitDecision は組み立てた決定をバックエンドに送信します。
// 失敗した場合でも組み立て中の決定は残り、そのまま再送できます。
func (a *App) SubmitDecision(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}
	b := a.builder(key, e)
	d := b.Build()

	out, err := a.Coordinator.Submit(backendContext(c), key, b.Round(), d)
	if err != nil {
		var serr *models.SubmissionError
		if errors.As(err, &serr) {
			a.Logger.Error("Failed to submit decision", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "submission_error",
				"retry":    true,
				"attempts": serr.Attempts,
				"round":    b.Round(),
				"decision": d,
			})
			return
		}
		a.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       out.Status,
		"round":        out.Round,
		"result":       out.Result,
		"waiting":      out.Waiting(),
		"currentRound": out.Entry.Player.CurrentRound,
		"capital":      out.Entry.Player.Capital,
	})
}

// Poll は待機中のラウンドが計算されたかを確認します。
func (a *App) Poll(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	out, err := a.Coordinator.Poll(backendContext(c), key)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       out.Status,
		"round":        out.Round,
		"result":       out.Result,
		"waiting":      out.Waiting(),
		"currentRound": out.Entry.Player.CurrentRound,
		"capital":      out.Entry.Player.Capital,
	})
}

// History は履歴、財務集計、所見を返します。
func (a *App) History(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}

	rounds := history.Rounds(e.Player)
	res := gin.H{
		"status":  "success",
		"rounds":  rounds,
		"finance": history.Finance(rounds),
	}
	if e.Game.Config.AdvisorEnabled {
		res["insights"] = history.Insights(rounds, a.Thresholds)
	}
	c.JSON(http.StatusOK, res)
}

// GameSocket はWebSocketでゲーム状態の更新を通知します。
func (a *App) GameSocket(c *gin.Context) {
	key, ok := a.playerKey(c)
	if !ok {
		return
	}
	e, err := a.entry(c, key, false)
	if err != nil {
		a.respondError(c, err)
		return
	}

	conn, err := a.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.Logger.Error("Failed to set websocket upgrade", zap.Error(err))
		return
	}
	client := a.Hub.Register(conn, key)
	a.Hub.Serve(client, &e)
}
