package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
)

var (
	userID       string
	itemID       string
	accessToken  string
	refreshToken string
	sealAccess   bool
	initialSync  bool
	csvPath      string
	fileName     string
	threshold    int
	batchSize    int
	calendarID   string
	timeMin      string
	emailFile    string
	queueName    string
)

var plaidSyncCmd = &cobra.Command{
	Use:   "plaid-sync",
	Short: "Sync one Plaid item",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := accessToken
		if sealAccess && token != "" {
			sealed, err := sealToken(cmd.Context(), token)
			if err != nil {
				return err
			}
			token = sealed
		}
		return enqueue(cmd.Context(), dto.QueuePlaidSync, dto.TaskPlaidSync, dto.PlaidSyncJob{
			UserID:      userID,
			ItemID:      itemID,
			AccessToken: token,
			InitialSync: initialSync,
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV that is already in storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := dto.ImportTransactionsPayload{
			UserID:      userID,
			CSVFilePath: csvPath,
			FileName:    fileName,
		}
		if cmd.Flags().Changed("threshold") {
			p.DeduplicateThreshold = helpers.Ptr(threshold)
		}
		if cmd.Flags().Changed("batch-size") {
			p.BatchSize = helpers.Ptr(batchSize)
		}
		return enqueue(cmd.Context(), dto.QueueImportTransactions, dto.TaskImportTransactions, p)
	},
}

var calendarSyncCmd = &cobra.Command{
	Use:   "calendar-sync",
	Short: "Sync a Google calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		job := dto.CalendarSyncJob{
			UserID:       userID,
			AccessToken:  accessToken,
			RefreshToken: helpers.NonZero(refreshToken),
			CalendarID:   helpers.NonZero(calendarID),
			TimeMin:      helpers.NonZero(timeMin),
		}
		return enqueue(cmd.Context(), dto.QueueCalendarSync, dto.TaskCalendarSync, job)
	},
}

var smartInputCmd = &cobra.Command{
	Use:   "smart-input",
	Short: "Process a raw email (.eml) file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(emailFile)
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		return enqueue(cmd.Context(), dto.QueueSmartInput, dto.TaskSmartInput, dto.SmartInputJob{EmailContent: string(raw)})
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress [job-id]",
	Short: "Print the stored progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := newRedis()
		if err != nil {
			return err
		}
		defer rdb.Close()

		p, ok, err := queue.NewRedisProgressStore(rdb).GetProgress(cmd.Context(), queueName, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no progress recorded for %s on %s", args[0], queueName)
		}
		fmt.Printf("%s: %d%%\n", args[0], p)
		return nil
	},
}

func init() {
	plaidSyncCmd.Flags().StringVar(&userID, "user", "", "User id")
	plaidSyncCmd.Flags().StringVar(&itemID, "item", "", "Plaid item id")
	plaidSyncCmd.Flags().StringVar(&accessToken, "access-token", "", "Plaid access token (omit to read it from Secret Manager)")
	plaidSyncCmd.Flags().BoolVar(&sealAccess, "seal", false, "Encrypt the access token with KMS before enqueueing")
	plaidSyncCmd.Flags().BoolVar(&initialSync, "initial", false, "Treat as the first sync of the item")
	_ = plaidSyncCmd.MarkFlagRequired("user")
	_ = plaidSyncCmd.MarkFlagRequired("item")

	importCmd.Flags().StringVar(&userID, "user", "", "User id")
	importCmd.Flags().StringVar(&csvPath, "path", "", "Storage path or gs:// URI of the CSV")
	importCmd.Flags().StringVar(&fileName, "file-name", "", "Original file name, for logs")
	importCmd.Flags().IntVar(&threshold, "threshold", 60, "Description similarity (0-100) for merging duplicates")
	importCmd.Flags().IntVar(&batchSize, "batch-size", 10, "Rows per batch")
	_ = importCmd.MarkFlagRequired("user")
	_ = importCmd.MarkFlagRequired("path")

	calendarSyncCmd.Flags().StringVar(&userID, "user", "", "User id")
	calendarSyncCmd.Flags().StringVar(&accessToken, "access-token", "", "Google OAuth access token")
	calendarSyncCmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Google OAuth refresh token")
	calendarSyncCmd.Flags().StringVar(&calendarID, "calendar", "", "Calendar id (default primary)")
	calendarSyncCmd.Flags().StringVar(&timeMin, "since", "", "RFC 3339 lower bound (default 90 days ago)")
	_ = calendarSyncCmd.MarkFlagRequired("user")
	_ = calendarSyncCmd.MarkFlagRequired("access-token")

	smartInputCmd.Flags().StringVar(&emailFile, "file", "", "Path to a raw RFC 5322 message")
	_ = smartInputCmd.MarkFlagRequired("file")

	progressCmd.Flags().StringVar(&queueName, "queue", dto.QueueImportTransactions, "Queue the job ran on")
}
