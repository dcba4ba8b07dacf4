package router

import (
	"database/sql"
	"meditrust/config"
	ledgerHandler "meditrust/internal/ledger"
	ledgerService "meditrust/internal/ledger/service"
	recordHandler "meditrust/internal/record"
	recordRepository "meditrust/internal/record/repository"
	recordService "meditrust/internal/record/service"
	"meditrust/internal/storage"
	userHandler "meditrust/internal/user"
	userRepository "meditrust/internal/user/repository"
	userService "meditrust/internal/user/service"
	"meditrust/middleware"
	"meditrust/socket"
	"net/http"
)

func Setup(cfg *config.Config, db *sql.DB, hub *socket.Hub, store *storage.ContentStore, ledger *ledgerService.LedgerService) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(cfg.JWTSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.Address(r))
	})
	mux.Handle("/ws", auth(wsHandler))

	// Records
	recService := recordService.NewRecordService(recordRepository.NewRecordRepository(db), store, ledger, hub)
	records := recordHandler.NewRecordHandler(recService, cfg.MaxUploadBytes)

	mux.Handle("/api/records/upload", auth(http.HandlerFunc(records.UploadRecord)))
	mux.Handle("/api/records", auth(http.HandlerFunc(records.GetMyRecords)))
	mux.Handle("/api/records/shared", auth(http.HandlerFunc(records.GetSharedRecords)))
	mux.Handle("/api/records/grant", auth(http.HandlerFunc(records.GrantAccess)))
	mux.Handle("/api/records/revoke", auth(http.HandlerFunc(records.RevokeAccess)))
	mux.Handle("/api/records/access", auth(http.HandlerFunc(records.CheckAccess)))
	mux.Handle("/api/records/grants", auth(http.HandlerFunc(records.ListGrantees)))
	mux.Handle("/api/records/download", auth(http.HandlerFunc(records.Download)))
	mux.Handle("/api/records/history", auth(http.HandlerFunc(records.History)))

	// Ledger
	ledgers := ledgerHandler.NewLedgerHandler(ledger)
	mux.Handle("/api/ledger/verify", auth(http.HandlerFunc(ledgers.Verify)))

	// Users
	users := userHandler.NewUserHandler(userService.NewUserService(userRepository.NewUserRepository(db)))
	mux.Handle("/api/users/me", auth(http.HandlerFunc(users.GetProfile)))
	mux.Handle("/api/users/role", auth(http.HandlerFunc(users.SetRole)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return middleware.RequestLogger(middleware.CORSMiddleware(mux))
}
