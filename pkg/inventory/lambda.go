package inventory

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleAPIGateway serves an API Gateway proxy request with the same routes
// and responses as the HTTP transport.
func (s *Service) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			body = []byte{'{'}
		} else {
			body = decoded
		}
	}

	collection, id, ok := route(req)
	var resp Response
	switch {
	case !ok:
		resp = errorResponse(http.StatusNotFound, "Not Found")
	case collection && req.HTTPMethod == http.MethodPost:
		resp = s.Create(ctx, body)
	case collection && req.HTTPMethod == http.MethodGet:
		resp = s.List(ctx)
	case !collection && req.HTTPMethod == http.MethodGet:
		resp = s.Get(ctx, id)
	case !collection && req.HTTPMethod == http.MethodDelete:
		resp = s.Delete(ctx, id)
	case !collection && req.HTTPMethod == http.MethodPut:
		resp = s.Update(ctx, id, body)
	default:
		resp = errorResponse(http.StatusMethodNotAllowed, "Method Not Allowed")
	}

	return events.APIGatewayProxyResponse{
		StatusCode:      resp.StatusCode,
		Headers:         map[string]string{},
		Body:            resp.Body,
		IsBase64Encoded: false,
	}, nil
}

// route resolves the request to the collection or to one device. The
// resource template is preferred; the raw path is the fallback for proxy
// resources.
func route(req events.APIGatewayProxyRequest) (collection bool, id string, ok bool) {
	switch req.Resource {
	case "/inventory":
		return true, "", true
	case "/inventory/{id}":
		id = req.PathParameters["id"]
		return false, id, id != ""
	}

	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "inventory":
		return true, "", true
	case len(parts) == 2 && parts[0] == "inventory" && parts[1] != "":
		return false, parts[1], true
	}
	return false, "", false
}
