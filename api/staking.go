package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stornet-labs/ledger/core"
	"github.com/stornet-labs/ledger/metrics"
)

type Staking struct {
	ledger *core.Ledger

	stakes      metrics.CountMeter
	unstakes    metrics.CountMeter
	totalStaked metrics.GaugeMeter
	rewardPool  metrics.GaugeMeter
}

func NewStaking(ledger *core.Ledger) *Staking {
	return &Staking{
		ledger:      ledger,
		stakes:      metrics.Counter("stakes_total"),
		unstakes:    metrics.Counter("unstakes_total"),
		totalStaked: metrics.Gauge("total_staked"),
		rewardPool:  metrics.Gauge("reward_pool_balance"),
	}
}

func (s *Staking) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/stakes").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(s.handleStake))
	sub.Path("/stakes/{index}/unstake").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(s.handleUnstake))
	sub.Path("/accounts/{address}/stakes").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(s.handleGetStakes))
	sub.Path("/totals").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(s.handleGetTotals))
	sub.Path("/referrers/{address}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(s.handleGetReferrer))
	sub.Path("/referrers/{address}/claims").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(s.handleClaimReferral))
}

type stakeRequest struct {
	From       string `json:"from"`
	Amount     string `json:"amount"`
	LockPeriod string `json:"lockPeriod"`
	Referrer   string `json:"referrer,omitempty"`
}

func (s *Staking) handleStake(w http.ResponseWriter, req *http.Request) error {
	var body stakeRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "amount"))
	}
	lockPeriod, err := time.ParseDuration(body.LockPeriod)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "lockPeriod"))
	}
	var referrer common.Address
	if body.Referrer != "" {
		if referrer, err = parseAddress(body.Referrer); err != nil {
			return BadRequest(errors.WithMessage(err, "referrer"))
		}
	}

	index, err := s.ledger.Stake(from, amount, lockPeriod, referrer)
	if err != nil {
		return err
	}
	s.stakes.Add(1)
	s.refreshTotals()
	return WriteJSON(w, M{"index": index})
}

func (s *Staking) handleUnstake(w http.ResponseWriter, req *http.Request) error {
	index, err := strconv.Atoi(mux.Vars(req)["index"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "index"))
	}
	var body callerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}

	res, err := s.ledger.Unstake(from, index)
	if err != nil {
		return err
	}
	s.unstakes.Add(1)
	s.refreshTotals()
	return WriteJSON(w, res)
}

func (s *Staking) handleGetStakes(w http.ResponseWriter, req *http.Request) error {
	account, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "address"))
	}
	return WriteJSON(w, s.ledger.StakesOf(account))
}

func (s *Staking) handleGetTotals(w http.ResponseWriter, _ *http.Request) error {
	return WriteJSON(w, s.ledger.Totals())
}

func (s *Staking) handleGetReferrer(w http.ResponseWriter, req *http.Request) error {
	account, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "address"))
	}
	rec := s.ledger.ReferrerOf(account)
	if rec == nil {
		return HTTPError(errors.New("referrer not found"), http.StatusNotFound)
	}
	return WriteJSON(w, rec)
}

func (s *Staking) handleClaimReferral(w http.ResponseWriter, req *http.Request) error {
	account, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "address"))
	}
	var body callerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	if from != account {
		return HTTPError(errors.New("only the referrer may claim"), http.StatusForbidden)
	}

	paid, err := s.ledger.ClaimReferralRewards(from)
	if err != nil {
		return err
	}
	s.refreshTotals()
	return WriteJSON(w, M{"paid": paid})
}

func (s *Staking) refreshTotals() {
	if totals := s.ledger.Totals(); totals.TotalStaked.IsInt64() {
		s.totalStaked.Set(totals.TotalStaked.Int64())
	}
	if balance := s.ledger.BalanceOf(core.RewardPoolAccount); balance.IsInt64() {
		s.rewardPool.Set(balance.Int64())
	}
}
