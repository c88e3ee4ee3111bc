package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
)

const (
	// SimulationServiceName is the fully-qualified name of the RPC service.
	SimulationServiceName = "classerp.simulation.v1.SimulationService"

	StartSimulationProcedure     = "/" + SimulationServiceName + "/StartSimulation"
	StopSimulationProcedure      = "/" + SimulationServiceName + "/StopSimulation"
	GetSimulationStatusProcedure = "/" + SimulationServiceName + "/GetSimulationStatus"
)

// jsonCodec lets connect carry plain Go structs as JSON. It replaces the
// built-in "json" codec, which only accepts protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Service implements the SimulationService RPCs on top of App.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

func (s *Service) StartSimulation(ctx context.Context, req *connect.Request[StartSimulationRequest]) (*connect.Response[StartSimulationResponse], error) {
	if req.Msg.SimulationID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("simulationId must be positive"))
	}
	resp, err := s.app.StartSimulation(ctx, req.Msg.SimulationID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) StopSimulation(ctx context.Context, req *connect.Request[StopSimulationRequest]) (*connect.Response[StopSimulationResponse], error) {
	resp, err := s.app.StopSimulation(req.Msg.SimulationID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) GetSimulationStatus(ctx context.Context, req *connect.Request[GetSimulationStatusRequest]) (*connect.Response[SimulationStatus], error) {
	status, err := s.app.GetSimulationStatus(ctx, req.Msg.SimulationID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(status), nil
}

func connectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrSimulationNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrNotRunning):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrInvalidRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// NewSimulationServiceHandler returns the mount path and handler for the
// service, in the shape of generated connect handlers.
func NewSimulationServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(StartSimulationProcedure, connect.NewUnaryHandler(StartSimulationProcedure, svc.StartSimulation, opts...))
	mux.Handle(StopSimulationProcedure, connect.NewUnaryHandler(StopSimulationProcedure, svc.StopSimulation, opts...))
	mux.Handle(GetSimulationStatusProcedure, connect.NewUnaryHandler(GetSimulationStatusProcedure, svc.GetSimulationStatus, opts...))
	return "/" + SimulationServiceName + "/", mux
}

// Client is a typed SimulationService client.
type Client struct {
	start  *connect.Client[StartSimulationRequest, StartSimulationResponse]
	stop   *connect.Client[StopSimulationRequest, StopSimulationResponse]
	status *connect.Client[GetSimulationStatusRequest, SimulationStatus]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		start:  connect.NewClient[StartSimulationRequest, StartSimulationResponse](httpClient, baseURL+StartSimulationProcedure, opts...),
		stop:   connect.NewClient[StopSimulationRequest, StopSimulationResponse](httpClient, baseURL+StopSimulationProcedure, opts...),
		status: connect.NewClient[GetSimulationStatusRequest, SimulationStatus](httpClient, baseURL+GetSimulationStatusProcedure, opts...),
	}
}

func (c *Client) StartSimulation(ctx context.Context, simulationID int64) (*StartSimulationResponse, error) {
	resp, err := c.start.CallUnary(ctx, connect.NewRequest(&StartSimulationRequest{SimulationID: simulationID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) StopSimulation(ctx context.Context, simulationID int64) (*StopSimulationResponse, error) {
	resp, err := c.stop.CallUnary(ctx, connect.NewRequest(&StopSimulationRequest{SimulationID: simulationID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetSimulationStatus(ctx context.Context, simulationID int64) (*SimulationStatus, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&GetSimulationStatusRequest{SimulationID: simulationID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
