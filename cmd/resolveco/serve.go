package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/resolveco/resolveco/internal/jobs"
	"github.com/resolveco/resolveco/internal/model"
)

// newServeCommand starts an HTTP intake endpoint for the pipeline,
// grounded on tadeyemo32-career26-vanguard's cmd/server/main.go gin
// wiring but serving resolveco's single POST /resolve route instead of
// a full REST API.
func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP POST /resolve intake endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pipe, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			store, err := jobs.Open(cfg.JobsDBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			pipe.Orchestrator.Deps.Store = store.WithJob("serve")

			router := gin.New()
			router.Use(gin.Recovery())
			router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
			router.POST("/resolve", newResolveHandler(pipe))

			log.Info().Str("addr", addr).Msg("resolveco serve listening")
			return router.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

type resolveRequest struct {
	Record model.CompanyInput `json:"record" binding:"required"`
}

func newResolveHandler(pipe *pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Record.ID == "" {
			req.Record.ID = uuid.NewString()
		}

		recs := pipe.Orchestrator.Run(c.Request.Context(), []model.CompanyInput{req.Record})
		c.JSON(http.StatusOK, recs[0])
	}
}
