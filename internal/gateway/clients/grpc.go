package clients

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"roofpro-hub/config"
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/api/integrationsapi"
	"roofpro-hub/internal/api/usersapi"
)

const (
	ServiceUser         = "user"
	ServiceCommissions  = "commissions"
	ServiceCompliance   = "compliance"
	ServiceDirectory    = "directory"
	ServiceIntegrations = "integrations"
)

type GRPCClients struct {
	User         *usersapi.Client
	Commissions  *commissionsapi.Client
	Compliance   *complianceapi.Client
	Directory    *directoryapi.Client
	Integrations *integrationsapi.Client
	conns        map[string]*grpc.ClientConn
}

// NewGRPCClientsWithFallback dials every service. A service that cannot be
// dialled is left nil and reported in the returned error so the gateway can
// still start and answer 503 for its routes.
func NewGRPCClientsWithFallback(addrs config.ServiceAddrs, opts ...grpc.DialOption) (*GRPCClients, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	c := &GRPCClients{conns: make(map[string]*grpc.ClientConn)}

	targets := map[string]string{
		ServiceUser:         addrs.User,
		ServiceCommissions:  addrs.Commissions,
		ServiceCompliance:   addrs.Compliance,
		ServiceDirectory:    addrs.Directory,
		ServiceIntegrations: addrs.Integrations,
	}
	var failed []string
	for name, target := range targets {
		if target == "" {
			failed = append(failed, name)
			continue
		}
		conn, err := grpc.NewClient(target, opts...)
		if err != nil {
			logrus.WithError(err).WithField("service", name).Warn("gRPC service connection failed")
			failed = append(failed, name)
			continue
		}
		c.conns[name] = conn
	}

	if conn := c.conns[ServiceUser]; conn != nil {
		c.User = usersapi.NewClient(conn)
	}
	if conn := c.conns[ServiceCommissions]; conn != nil {
		c.Commissions = commissionsapi.NewClient(conn)
	}
	if conn := c.conns[ServiceCompliance]; conn != nil {
		c.Compliance = complianceapi.NewClient(conn)
	}
	if conn := c.conns[ServiceDirectory]; conn != nil {
		c.Directory = directoryapi.NewClient(conn)
	}
	if conn := c.conns[ServiceIntegrations]; conn != nil {
		c.Integrations = integrationsapi.NewClient(conn)
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return c, fmt.Errorf("unavailable services: %v", failed)
	}
	logrus.Info("Connected to all gRPC services")
	return c, nil
}

// Services lists the service names the gateway knows about.
func Services() []string {
	return []string{ServiceUser, ServiceCommissions, ServiceCompliance, ServiceDirectory, ServiceIntegrations}
}

// State reports a service's connection state, or "unavailable" when it was
// never dialled.
func (c *GRPCClients) State(name string) string {
	conn, ok := c.conns[name]
	if !ok || conn == nil {
		return "unavailable"
	}
	return conn.GetState().String()
}

// IsHealthy treats idle and connecting channels as healthy since grpc dials
// lazily.
func (c *GRPCClients) IsHealthy(name string) bool {
	conn, ok := c.conns[name]
	if !ok || conn == nil {
		return false
	}
	switch conn.GetState() {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return false
	}
	return true
}

func (c *GRPCClients) Close() {
	for name, conn := range c.conns {
		if err := conn.Close(); err != nil {
			logrus.WithError(err).WithField("service", name).Warn("failed to close gRPC connection")
		}
	}
}
