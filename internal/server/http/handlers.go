package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/scorekeeper/internal/convert"
	"github.com/and161185/scorekeeper/internal/errs"
	"github.com/and161185/scorekeeper/internal/model"
	"github.com/and161185/scorekeeper/internal/ranking"
	"github.com/and161185/scorekeeper/internal/service"
)

type registerRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type pointsRequest struct {
	Points int64 `json:"points" validate:"gte=0"`
	Sales  int64 `json:"sales" validate:"gte=0"`
}

type salesRequest struct {
	Count int64 `json:"count" validate:"gt=0"`
}

type badgeRequest struct {
	Badge string `json:"badge" validate:"required,max=200"`
}

type completeRequest struct {
	Challenge string `json:"challenge" validate:"max=200"`
	Points    int64  `json:"points" validate:"gte=0"`
	Badge     string `json:"badge" validate:"max=200"`
}

type userWithRanking struct {
	User    convert.UserView  `json:"user"`
	Ranking []model.RankEntry `json:"ranking"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return convert.ParseUserID(mux.Vars(r)["id"])
}

func (s *Server) view(u *model.UserScore) convert.UserView {
	return convert.ToUserView(*u, &s.rule)
}

// withRanking attaches the recomputed top ranking to a mutation response.
func (s *Server) withRanking(w http.ResponseWriter, r *http.Request, u *model.UserScore) {
	top, err := s.ledger.TopN(r.Context(), ranking.DefaultLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userWithRanking{User: s.view(u), Ranking: top})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.Register(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(u))
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(u))
}

func (s *Server) addPoints(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req pointsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.ApplyActivity(r.Context(), id, req.Points, req.Sales)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.withRanking(w, r, u)
}

func (s *Server) addSales(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req salesRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.RecordSale(r.Context(), id, req.Count)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.withRanking(w, r, u)
}

func (s *Server) addAchievement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req badgeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.AddAchievementBadge(r.Context(), id, req.Badge)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(u))
}

func (s *Server) completeChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req completeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.ledger.CompleteWeeklyChallenge(r.Context(), id, model.CompleteChallenge{
		ChallengeID: req.Challenge,
		Points:      req.Points,
		Badge:       req.Badge,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(u))
}

// positiveQuery reads an optional positive integer query parameter.
func positiveQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errs.ErrValidation, key)
	}
	return n, nil
}

func (s *Server) pointsHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recent, err := positiveQuery(r, "recent", service.DefaultHistoryLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := s.ledger.History(r.Context(), id, recent)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) ranking(w http.ResponseWriter, r *http.Request) {
	limit, err := positiveQuery(r, "limit", ranking.DefaultLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	top, err := s.ledger.TopN(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) challenges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cat)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
