package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/ledger"
)

// ClaimService accepts mint claims and reports their ledger state.
type ClaimService interface {
	SubmitClaim(ctx context.Context, claim deposit.Claim) (*ledger.Record, error)
	Deposit(ctx context.Context, operationHash string) (*ledger.Record, error)
}

type SignRequest struct {
	TxHash        string `json:"tx_hash"`
	TxKey         string `json:"tx_key"`
	Amount        uint64 `json:"amount"`
	TargetAddress string `json:"target_address"`
}

type SignResponse struct {
	ClaimID       string        `json:"claim_id"`
	OperationHash string        `json:"operation_hash"`
	Status        ledger.Status `json:"status"`
	ValidatorID   int           `json:"validator_id"`
}

type ServerOptions struct {
	Transport *Transport
	Claims    ClaimService
	Registry  *prometheus.Registry
	// State reports the lifecycle state for /health. Optional.
	State func() string
	Port  int
}

// Server is the inbound service of one validator.
type Server struct {
	echo   *echo.Echo
	opts   ServerOptions
	logger *logrus.Entry
}

func NewServer(opts ServerOptions) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		opts:   opts,
		logger: logrus.WithFields(logrus.Fields{"service": "server", "validator_id": opts.Transport.ValidatorID()}),
	}

	e.GET("/health", healthHandler(s))
	e.POST("/party", partyHandler(s))
	e.POST("/sign", signHandler(s))
	e.POST("/message", messageHandler(s))
	e.GET("/deposits/:operation_hash", depositHandler(s))
	if opts.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Bind opens the listener so the port is known before Serve.
func (s *Server) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.echo.Listener = ln
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.echo.Listener == nil {
		return nil
	}
	return s.echo.Listener.Addr()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	s.logger.WithField("addr", s.Addr()).Info("starting validator server")
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func healthHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := "running"
		if s.opts.State != nil {
			state = s.opts.State()
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":       "healthy",
			"state":        state,
			"validator_id": s.opts.Transport.ValidatorID(),
			"port":         s.opts.Port,
			"peers":        s.opts.Transport.Peers(),
			"time":         time.Now().UTC(),
		})
	}
}

func partyHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req PartySignupRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid signup request")
		}
		resp, err := s.opts.Transport.Signup(req)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func signHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Claims == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "claims are not accepted by this node")
		}
		var req SignRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid sign request")
		}

		claim := deposit.NewClaim(req.TxHash, req.TxKey, req.Amount, req.TargetAddress, time.Now())
		if err := claim.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		rec, err := s.opts.Claims.SubmitClaim(c.Request().Context(), claim)
		if err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				return echo.NewHTTPError(http.StatusConflict, "operation already tracked")
			}
			s.logger.WithError(err).WithField("txid", claim.TxID).Error("failed to submit claim")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit claim")
		}
		return c.JSON(http.StatusAccepted, SignResponse{
			ClaimID:       claim.ID,
			OperationHash: rec.OperationHash,
			Status:        rec.Status,
			ValidatorID:   s.opts.Transport.ValidatorID(),
		})
	}
}

func messageHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var msg ConsensusMessage
		if err := c.Bind(&msg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid message")
		}
		// subscribers may keep working after the response is written
		ctx := context.WithoutCancel(c.Request().Context())
		if err := s.opts.Transport.Ingest(ctx, msg); err != nil {
			switch {
			case errors.Is(err, ErrBadSignature), errors.Is(err, ErrNoPeerKey):
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			default:
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "received"})
	}
}

func depositHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Claims == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "claims are not accepted by this node")
		}
		rec, err := s.opts.Claims.Deposit(c.Request().Context(), c.Param("operation_hash"))
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "operation not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, rec)
	}
}
