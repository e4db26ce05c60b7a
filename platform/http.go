package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"
)

// HTTPClient is a minimal JSON-RPC adapter over a platform gateway.
// It implements Client; timeouts are the gateway's concern, so the
// underlying http.Client deliberately has none.
type HTTPClient struct {
	endpoint string
	http     *http.Client
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{},
	}
}

type rpcRequest struct {
	Version string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *HTTPClient) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(&rpcRequest{Version: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return errors.Wrap(err, "marshal rpc request")
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build rpc request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(KindTransientNetwork, err, "platform gateway unreachable")
	}
	defer resp.Body.Close()

	text, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return WrapError(KindTransientNetwork, err, "reading platform response")
	}
	rpcResp := &rpcResponse{}
	if err := json.Unmarshal(text, rpcResp); err != nil {
		return errors.Wrap(err, "unmarshal rpc response")
	}
	if rpcResp.Error != nil {
		// The gateway surfaces platform errors as text; Classify
		// maps the known patterns onto kinds.
		return Classify(rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return errors.Wrap(err, "unmarshal rpc result")
		}
	}
	return nil
}

func (c *HTTPClient) FetchContestedResources(ctx context.Context, query ResourceQuery) ([]string, error) {
	var names []string
	params := map[string]interface{}{
		"contractId":       query.ContractID.Hex(),
		"documentType":     query.DocumentType,
		"indexName":        query.IndexName,
		"startIndexValues": query.StartIndexValues,
		"startAt":          query.StartAt,
		"limit":            query.Limit,
		"ascending":        query.Ascending,
	}
	if err := c.call(ctx, "contest_getContestedResources", params, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *HTTPClient) FetchEndingTime(ctx context.Context, poll VotePollRef) (uint64, error) {
	var endTime uint64
	if err := c.call(ctx, "contest_getEndingTime", pollParams(poll), &endTime); err != nil {
		return 0, err
	}
	return endTime, nil
}

func (c *HTTPClient) FetchContenders(ctx context.Context, poll VotePollRef) (*ContendersResult, error) {
	result := &ContendersResult{}
	if err := c.call(ctx, "contest_getContenders", pollParams(poll), result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) BroadcastVoteTransition(ctx context.Context, transition *SignedTransition) (*Confirmation, error) {
	confirmation := &Confirmation{}
	params := map[string]interface{}{
		"voterId":   transition.VoterID.Hex(),
		"pollId":    transition.PollID.Hex(),
		"payload":   transition.Payload,
		"publicKey": transition.PublicKey,
		"signature": transition.Signature,
	}
	if err := c.call(ctx, "contest_broadcastVote", params, confirmation); err != nil {
		return nil, err
	}
	return confirmation, nil
}

func pollParams(poll VotePollRef) map[string]interface{} {
	return map[string]interface{}{
		"contractId":   poll.ContractID.Hex(),
		"documentType": poll.DocumentType,
		"indexName":    poll.IndexName,
		"indexValues":  poll.IndexValues,
	}
}
