package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/fylein/fyle-integrations-app-e2e-tests/internal/mockapi"
	"github.com/fylein/fyle-integrations-app-e2e-tests/pkg/logger"
	"github.com/spf13/cobra"
)

var mockAPIPort int

var mockAPICmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve an in-memory double of the platform API",
	Long:  `Serve the platform API double for local development, so the suite can run without a real backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Init("development")
		l := logger.LoggerWrapper()

		server, err := mockapi.New(mockapi.Options{
			SuperAdminEmail:    "super.admin@fyle.in",
			SuperAdminPassword: "Password@1234",
		}, l)
		if err != nil {
			log.Fatalf("failed to start mock API: %v", err)
		}

		addr := fmt.Sprintf(":%d", mockAPIPort)
		l.Info("serving mock platform API", "address", addr)
		if err := http.ListenAndServe(addr, server.Router()); err != nil {
			log.Fatalf("mock API server failed: %v", err)
		}
	},
}
