package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stornet-labs/ledger/core"
)

type Accounts struct {
	ledger *core.Ledger
}

func NewAccounts(ledger *core.Ledger) *Accounts {
	return &Accounts{ledger: ledger}
}

func (a *Accounts) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{address}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(a.handleGetAccount))
}

func (a *Accounts) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	account, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return BadRequest(errors.WithMessage(err, "address"))
	}

	resp := M{
		"address": account,
		"balance": a.ledger.BalanceOf(account),
	}
	if act, ok := a.ledger.ActivityOf(account); ok {
		resp["activity"] = act
	}
	return WriteJSON(w, resp)
}
