package api

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stornet-labs/ledger/core"
	"github.com/stornet-labs/ledger/metrics"
)

type Governance struct {
	ledger *core.Ledger

	proposalsCreated  metrics.CountMeter
	proposalsExecuted metrics.CountMeter
}

func NewGovernance(ledger *core.Ledger) *Governance {
	return &Governance{
		ledger:            ledger,
		proposalsCreated:  metrics.Counter("proposals_created_total"),
		proposalsExecuted: metrics.Counter("proposals_executed_total"),
	}
}

func (g *Governance) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/proposals").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handleCreateProposal))
	sub.Path("/proposals").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(g.handleListProposals))
	sub.Path("/proposals/{id}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(g.handleGetProposal))
	sub.Path("/proposals/{id}/approvals").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handleApproveProposal))
	sub.Path("/proposals/{id}/execution").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handleExecuteProposal))
	sub.Path("/roles/{role}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(g.handleGetRole))
	sub.Path("/roles/{role}/quorum").Methods(http.MethodPut).HandlerFunc(WrapHandlerFunc(g.handleSetQuorum))
	sub.Path("/roles/{role}/limit").Methods(http.MethodPut).HandlerFunc(WrapHandlerFunc(g.handleSetLimit))
	sub.Path("/timelocks").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handleSetTimeLock))
	sub.Path("/pause").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handlePause))
	sub.Path("/unpause").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(g.handleUnpause))
}

type createProposalRequest struct {
	From   string `json:"from"`
	Type   string `json:"type"`
	Target string `json:"target"`
	Role   string `json:"role,omitempty"`
	Amount string `json:"amount,omitempty"`
	Token  string `json:"token,omitempty"`
}

func (g *Governance) handleCreateProposal(w http.ResponseWriter, req *http.Request) error {
	var body createProposalRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	typ, err := parseProposalType(body.Type)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "type"))
	}
	target, err := parseAddress(body.Target)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "target"))
	}
	var role common.Hash
	if body.Role != "" {
		if role, err = parseRole(body.Role); err != nil {
			return BadRequest(errors.WithMessage(err, "role"))
		}
	}
	var amount *big.Int
	if body.Amount != "" {
		if amount, err = parseAmount(body.Amount); err != nil {
			return BadRequest(errors.WithMessage(err, "amount"))
		}
	}
	var token common.Address
	if body.Token != "" {
		if token, err = parseAddress(body.Token); err != nil {
			return BadRequest(errors.WithMessage(err, "token"))
		}
	}

	id, err := g.ledger.CreateProposal(from, typ, target, role, amount, token)
	if err != nil {
		return err
	}
	g.proposalsCreated.Add(1)
	return WriteJSON(w, M{"id": id})
}

type callerRequest struct {
	From string `json:"from"`
}

func (g *Governance) handleApproveProposal(w http.ResponseWriter, req *http.Request) error {
	from, id, err := g.callerAndID(req)
	if err != nil {
		return err
	}
	if err := g.ledger.ApproveProposal(from, id); err != nil {
		return err
	}
	p := g.ledger.ProposalByID(id)
	// the approval may have executed the proposal as part of the same call
	if p != nil && p.Status == core.Executed {
		g.proposalsExecuted.Add(1)
	}
	return WriteJSON(w, p)
}

func (g *Governance) handleExecuteProposal(w http.ResponseWriter, req *http.Request) error {
	from, id, err := g.callerAndID(req)
	if err != nil {
		return err
	}
	if err := g.ledger.ExecuteProposal(from, id); err != nil {
		return err
	}
	g.proposalsExecuted.Add(1)
	return WriteJSON(w, g.ledger.ProposalByID(id))
}

func (g *Governance) callerAndID(req *http.Request) (common.Address, common.Hash, error) {
	var body callerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return common.Address{}, common.Hash{}, BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return common.Address{}, common.Hash{}, BadRequest(errors.WithMessage(err, "from"))
	}
	raw := mux.Vars(req)["id"]
	if len(raw) != 2+2*common.HashLength {
		return common.Address{}, common.Hash{}, BadRequest(errors.New("malformed proposal id"))
	}
	return from, common.HexToHash(raw), nil
}

func (g *Governance) handleGetProposal(w http.ResponseWriter, req *http.Request) error {
	raw := mux.Vars(req)["id"]
	p := g.ledger.ProposalByID(common.HexToHash(raw))
	if p == nil {
		return HTTPError(errors.New("proposal not found"), http.StatusNotFound)
	}
	return WriteJSON(w, p)
}

func (g *Governance) handleListProposals(w http.ResponseWriter, req *http.Request) error {
	offset, err := queryInt(req, "offset", 0)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "offset"))
	}
	limit, err := queryInt(req, "limit", 50)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "limit"))
	}
	return WriteJSON(w, g.ledger.Proposals(offset, limit))
}

func (g *Governance) handleGetRole(w http.ResponseWriter, req *http.Request) error {
	role, err := parseRole(mux.Vars(req)["role"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "role"))
	}
	cfg, ok := g.ledger.RoleConfigOf(role)
	if !ok {
		return HTTPError(errors.New("role not configured"), http.StatusNotFound)
	}
	return WriteJSON(w, M{
		"role":    core.RoleName(role),
		"config":  cfg,
		"members": g.ledger.RoleMembers(role),
	})
}

type setQuorumRequest struct {
	From   string `json:"from"`
	Quorum uint32 `json:"quorum"`
}

func (g *Governance) handleSetQuorum(w http.ResponseWriter, req *http.Request) error {
	role, err := parseRole(mux.Vars(req)["role"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "role"))
	}
	var body setQuorumRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	if err := g.ledger.SetRoleQuorum(from, role, body.Quorum); err != nil {
		return err
	}
	return WriteJSON(w, M{"role": core.RoleName(role), "quorum": body.Quorum})
}

type setLimitRequest struct {
	From  string `json:"from"`
	Limit string `json:"limit"`
}

func (g *Governance) handleSetLimit(w http.ResponseWriter, req *http.Request) error {
	role, err := parseRole(mux.Vars(req)["role"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "role"))
	}
	var body setLimitRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	limit, err := parseAmount(body.Limit)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "limit"))
	}
	if err := g.ledger.SetRoleTransactionLimit(from, role, limit); err != nil {
		return err
	}
	return WriteJSON(w, M{"role": core.RoleName(role), "limit": limit})
}

type setTimeLockRequest struct {
	From   string `json:"from"`
	Target string `json:"target"`
	Delay  string `json:"delay"`
}

func (g *Governance) handleSetTimeLock(w http.ResponseWriter, req *http.Request) error {
	var body setTimeLockRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	target, err := parseAddress(body.Target)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "target"))
	}
	var delay time.Duration
	if body.Delay != "" {
		if delay, err = time.ParseDuration(body.Delay); err != nil {
			return BadRequest(errors.WithMessage(err, "delay"))
		}
	}
	if err := g.ledger.SetRoleChangeTimeLock(from, target, delay); err != nil {
		return err
	}
	return WriteJSON(w, M{"target": target, "delay": delay.String()})
}

func (g *Governance) handlePause(w http.ResponseWriter, req *http.Request) error {
	return g.handleEmergency(w, req, true)
}

func (g *Governance) handleUnpause(w http.ResponseWriter, req *http.Request) error {
	return g.handleEmergency(w, req, false)
}

func (g *Governance) handleEmergency(w http.ResponseWriter, req *http.Request, pause bool) error {
	var body callerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(errors.WithMessage(err, "body"))
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return BadRequest(errors.WithMessage(err, "from"))
	}
	if pause {
		err = g.ledger.EmergencyPause(from)
	} else {
		err = g.ledger.EmergencyUnpause(from)
	}
	if err != nil {
		return err
	}
	return WriteJSON(w, M{"paused": g.ledger.Paused()})
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("%q is not an address", s)
	}
	return common.HexToAddress(s), nil
}

func parseRole(name string) (common.Hash, error) {
	role, ok := core.RoleByName(name)
	if !ok {
		return common.Hash{}, errors.Errorf("unrecognized role %q", name)
	}
	return role, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("%q is not a decimal amount", s)
	}
	return v, nil
}

func parseProposalType(s string) (core.ProposalType, error) {
	for _, typ := range []core.ProposalType{core.RoleChange, core.RoleRemoval, core.Upgrade, core.Whitelist, core.WalletAddition} {
		if typ.String() == s {
			return typ, nil
		}
	}
	return 0, errors.Errorf("unknown proposal type %q", s)
}

func queryInt(req *http.Request, name string, def int) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Errorf("%q is not a valid %s", raw, name)
	}
	return v, nil
}
