package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/database"
	"github.com/MarkoPoloResearchLab/surveypay/internal/httpapi"
	"github.com/MarkoPoloResearchLab/surveypay/internal/oplog"
	"github.com/MarkoPoloResearchLab/surveypay/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagUserID       = "user"
	flagWithdrawalID = "id"
	flagOutcome      = "outcome"
	flagEmail        = "email"
	flagRole         = "role"
)

var errLedgerInconsistent = errors.New("ledger balances do not match entries")

// adminRuntime bundles the services the maintenance commands operate on.
type adminRuntime struct {
	handle *database.Handle
	ledger *ledger.Service
	users  *users.Service
	logger *zap.Logger
}

func openAdminRuntime(ctx context.Context, cmd *cobra.Command, v *viper.Viper) (*adminRuntime, error) {
	databaseURL, err := loadDatabaseURL(cmd, v)
	if err != nil {
		return nil, err
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	handle, err := database.Open(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	ledgerService, err := ledger.NewService(gormstore.New(handle.DB, gormstore.WithParticipants(users.Record{}.TableName())), utcNow, ledger.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	userService, err := users.NewService(handle.DB, utcNow)
	if err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("users service init: %w", err)
	}
	return &adminRuntime{handle: handle, ledger: ledgerService, users: userService, logger: logger}, nil
}

func (admin *adminRuntime) Close() {
	_ = admin.logger.Sync()
	_ = admin.handle.Close()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := loadDatabaseURL(cmd, v)
			if err != nil {
				return err
			}
			handle, err := database.Open(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = handle.Close() }()
			if err := database.Migrate(handle.DB, httpapi.Models()...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", handle.Driver)
			return nil
		},
	}
}

func newAuditCommand(v *viper.Viper) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay a user's ledger entries and compare them with the stored balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedUserID, err := ledger.NewUserID(userID)
			if err != nil {
				return err
			}
			admin, err := openAdminRuntime(cmd.Context(), cmd, v)
			if err != nil {
				return err
			}
			defer admin.Close()
			report, err := admin.ledger.Audit(cmd.Context(), parsedUserID)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, map[string]any{
				"user_id":    report.UserID.String(),
				"entries":    report.Entries,
				"consistent": report.Consistent,
				"expected":   balancesView(report.Expected),
				"actual":     balancesView(report.Actual),
			}); err != nil {
				return err
			}
			if !report.Consistent {
				return errLedgerInconsistent
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, flagUserID, "", "user id to audit (required)")
	_ = cmd.MarkFlagRequired(flagUserID)
	return cmd
}

func balancesView(balances ledger.Balances) map[string]int64 {
	return map[string]int64{
		"available":    balances.Available.Int64(),
		"reserved":     balances.Reserved.Int64(),
		"total_earned": balances.TotalEarned.Int64(),
		"debt":         balances.Debt.Int64(),
	}
}

func newWithdrawalsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Manage withdrawal requests",
	}
	var (
		withdrawalID string
		outcome      string
	)
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark a pending withdrawal completed or rejected",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedID, err := ledger.NewWithdrawalID(withdrawalID)
			if err != nil {
				return err
			}
			parsedOutcome, err := ledger.ParseWithdrawalOutcome(outcome)
			if err != nil {
				return err
			}
			admin, err := openAdminRuntime(cmd.Context(), cmd, v)
			if err != nil {
				return err
			}
			defer admin.Close()
			result, err := admin.ledger.ResolveWithdrawal(cmd.Context(), parsedID, parsedOutcome)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"withdrawal_id": result.Withdrawal.WithdrawalID.String(),
				"user_id":       result.Withdrawal.UserID.String(),
				"amount":        result.Withdrawal.Amount.Int64(),
				"status":        result.Withdrawal.Status.String(),
				"changed":       result.Changed,
			})
		},
	}
	resolveCmd.Flags().StringVar(&withdrawalID, flagWithdrawalID, "", "withdrawal id (required)")
	resolveCmd.Flags().StringVar(&outcome, flagOutcome, "", "completed or rejected (required)")
	_ = resolveCmd.MarkFlagRequired(flagWithdrawalID)
	_ = resolveCmd.MarkFlagRequired(flagOutcome)
	cmd.AddCommand(resolveCmd)
	return cmd
}

func newUsersCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	var (
		email string
		role  string
	)
	promoteCmd := &cobra.Command{
		Use:   "promote",
		Short: "Change a user's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := users.ParseRole(strings.TrimSpace(role))
			if err != nil {
				return err
			}
			admin, err := openAdminRuntime(cmd.Context(), cmd, v)
			if err != nil {
				return err
			}
			defer admin.Close()
			user, err := admin.users.SetRole(cmd.Context(), email, parsedRole)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"user_id": user.UserID,
				"email":   user.Email,
				"role":    string(user.Role),
			})
		},
	}
	promoteCmd.Flags().StringVar(&email, flagEmail, "", "email of the user (required)")
	promoteCmd.Flags().StringVar(&role, flagRole, string(users.RoleAdmin), "role to assign (admin or member)")
	_ = promoteCmd.MarkFlagRequired(flagEmail)
	cmd.AddCommand(promoteCmd)
	return cmd
}
