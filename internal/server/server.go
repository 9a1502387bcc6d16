package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/tally/internal/backup"
	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/membership"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/reconcile"
	"github.com/dukerupert/tally/internal/store"
	ws "github.com/dukerupert/tally/internal/websocket"
)

// Config carries the pieces of configuration the server wires into its
// handlers.
type Config struct {
	GatewayKey string
	Backup     backup.Config
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	taskEventH    *handler.TaskEventHandler
	redemptionH   *handler.RedemptionHandler
	rewardH       *handler.RewardHandler
	memberH       *handler.MemberHandler
	familyH       *handler.FamilyHandler
	auditH        *handler.AuditHandler
	adminH        *handler.AdminHandler
	memberStore   *store.MemberStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	gatewayKey    string
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger)

	memberStore := store.NewMemberStore(db)
	familyStore := store.NewFamilyStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	auditStore := store.NewAuditStore(db)
	backupStore := store.NewBackupStore(db)

	parents := membership.NewChecker()
	engine := ledger.NewEngine(db, parents, logger.With("component", "ledger"))
	trigger := ledger.NewTrigger(engine, logger.With("component", "trigger"))
	redemptions := ledger.NewRedemptionService(db, parents, logger.With("component", "redemption"))

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger)
	reconciler := reconcile.New(db, logger)

	return &Server{
		db:            db,
		hub:           hub,
		taskEventH:    handler.NewTaskEventHandler(taskStore, trigger, hub, logger.With("component", "task_event")),
		redemptionH:   handler.NewRedemptionHandler(redemptions, rewardStore, hub, logger.With("component", "redemption_handler")),
		rewardH:       handler.NewRewardHandler(rewardStore, logger.With("component", "reward")),
		memberH:       handler.NewMemberHandler(memberStore, logger.With("component", "member")),
		familyH:       handler.NewFamilyHandler(familyStore, logger.With("component", "family")),
		auditH:        handler.NewAuditHandler(auditStore, memberStore),
		adminH:        handler.NewAdminHandler(backupMgr, backupStore, reconciler, logger.With("component", "admin")),
		memberStore:   memberStore,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		gatewayKey:    cfg.GatewayKey,
		logger:        logger,
	}
}

// BackupManager exposes the manager so main can run its scheduler.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter exposes the limiter so main can run periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	actorMiddleware := middleware.RequireActor(s.gatewayKey, s.memberStore)
	outerMux.Handle("/", actorMiddleware(s.rateLimited(protectedMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, 300, time.Minute)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Task transition feed and local projection
	mux.HandleFunc("POST /api/task-events", s.taskEventH.Receive)
	mux.HandleFunc("GET /api/tasks", s.taskEventH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskEventH.Get)

	// Reward catalog; mutations are parent-only
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.HandleFunc("GET /api/rewards/{id}", s.rewardH.Get)
	mux.Handle("POST /api/rewards", middleware.RequireParent(http.HandlerFunc(s.rewardH.Create)))
	mux.Handle("PUT /api/rewards/{id}", middleware.RequireParent(http.HandlerFunc(s.rewardH.Update)))
	mux.Handle("DELETE /api/rewards/{id}", middleware.RequireParent(http.HandlerFunc(s.rewardH.Delete)))

	// Redemptions
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.redemptionH.Redeem)
	mux.HandleFunc("GET /api/redemptions", s.redemptionH.List)
	mux.HandleFunc("GET /api/redemptions/{id}", s.redemptionH.Get)
	mux.HandleFunc("GET /api/members/{id}/redemptions", s.redemptionH.ListByMember)

	// Members and balances
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.HandleFunc("GET /api/members/{id}", s.memberH.Get)
	mux.Handle("POST /api/members", middleware.RequireParent(http.HandlerFunc(s.memberH.Create)))
	mux.Handle("DELETE /api/members/{id}", middleware.RequireParent(http.HandlerFunc(s.memberH.Delete)))
	mux.HandleFunc("GET /api/members/{id}/points", s.memberH.GetBalance)
	mux.HandleFunc("GET /api/leaderboard", s.memberH.Leaderboard)

	// PINs
	mux.HandleFunc("POST /api/members/{id}/pin", s.memberH.SetPIN)
	mux.Handle("DELETE /api/members/{id}/pin", middleware.RequireParent(http.HandlerFunc(s.memberH.ClearPIN)))
	mux.HandleFunc("POST /api/members/{id}/pin/verify", s.memberH.VerifyPIN)

	// Family counters
	mux.HandleFunc("GET /api/family", s.familyH.Get)

	// Audit trail
	mux.HandleFunc("GET /api/audit", s.auditH.ListByFamily)
	mux.HandleFunc("GET /api/members/{id}/audit", s.auditH.ListByMember)

	// Admin: backups and reconciliation, parent-only
	mux.Handle("GET /api/admin/backups", middleware.RequireParent(http.HandlerFunc(s.adminH.ListBackups)))
	mux.Handle("GET /api/admin/backups/status", middleware.RequireParent(http.HandlerFunc(s.adminH.BackupStatus)))
	mux.Handle("POST /api/admin/backups", middleware.RequireParent(http.HandlerFunc(s.adminH.RunBackup)))
	mux.Handle("POST /api/admin/reconcile", middleware.RequireParent(http.HandlerFunc(s.adminH.Reconcile)))

	// WebSocket event stream
	mux.HandleFunc("GET /ws", s.hub.Handler())
}
