package controllers

import (
	"net/http"
	"time"

	"github.com/princinho/studyspark/auth"
	"github.com/princinho/studyspark/database"
	"github.com/princinho/studyspark/storage"
	"github.com/princinho/studyspark/utils"
	"go.uber.org/zap"
)

// Env carries what the handlers depend on. main builds one and passes it to
// every handler constructor.
type Env struct {
	Users       database.UserStore
	Documents   database.DocumentStore
	Sessions    *auth.SessionManager
	Permissions *auth.PermissionTable
	Cookies     utils.SessionCookies
	HashCost    int

	// Objects may be nil, in which case uploads are summarised but not kept.
	Objects    storage.ObjectStore
	Validator  *utils.FileValidator
	HTTPClient *http.Client

	Log *zap.Logger
	Now func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
