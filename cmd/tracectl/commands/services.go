package commands

import (
	"fruittrace/internal/config"
	"fruittrace/internal/repository"
	"fruittrace/internal/service"

	"gorm.io/gorm"
)

// services holds what the commands need. No notifications are sent from the CLI.
type services struct {
	users   service.UserService
	catalog service.CatalogService
	ledger  service.ApprovalService
}

func newServices(db *gorm.DB, cfg config.Config) services {
	tx := repository.NewTransactionManager(db, repository.WithLockTimeout(cfg.DB.LockTimeout))
	auditRepo := repository.NewAuditRepository(db)
	productRepo := repository.NewProductRepository(db)
	return services{
		users:   service.NewUserService(tx, repository.NewUserRepository(db), auditRepo, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		catalog: service.NewCatalogService(tx, repository.NewCatalogRepository(db), productRepo, auditRepo),
		ledger:  service.NewApprovalService(repository.NewApprovalRepository(db), productRepo),
	}
}
