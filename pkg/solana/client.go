// Package solana wraps the JSON-RPC surface of a Solana node that the bot
// needs: balances, token accounts, signatures, transactions and broadcast.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TokenProgramID owns all SPL token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// SystemProgramID is the native transfer program.
const SystemProgramID = "11111111111111111111111111111111"

// Client is a rate-limited JSON-RPC client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds an RPC client. ratePerSec throttles outbound calls so the
// background monitors cannot starve foreground trades of the public endpoint.
func NewClient(baseURL string, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 8
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s status %d", method, res.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetBalance returns the lamport balance of an address.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// TokenAccount is one parsed SPL token holding.
type TokenAccount struct {
	Pubkey    string
	Mint      string
	UIAmount  float64
	Decimals  int
	RawAmount uint64
}

type parsedTokenAccounts struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string `json:"mint"`
						TokenAmount struct {
							Amount   string  `json:"amount"`
							Decimals int     `json:"decimals"`
							UIAmount float64 `json:"uiAmount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// GetTokenAccountsByOwner lists the owner's token accounts. A non-empty mint
// filters to a single mint; otherwise all accounts under the token program
// are returned.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, error) {
	filter := map[string]any{"programId": TokenProgramID}
	if mint != "" {
		filter = map[string]any{"mint": mint}
	}
	var res parsedTokenAccounts
	err := c.call(ctx, "getTokenAccountsByOwner",
		[]any{owner, filter, map[string]any{"encoding": "jsonParsed"}}, &res)
	if err != nil {
		return nil, err
	}

	out := make([]TokenAccount, 0, len(res.Value))
	for _, v := range res.Value {
		amt := v.Account.Data.Parsed.Info.TokenAmount
		var raw uint64
		fmt.Sscan(amt.Amount, &raw)
		out = append(out, TokenAccount{
			Pubkey:    v.Pubkey,
			Mint:      v.Account.Data.Parsed.Info.Mint,
			UIAmount:  amt.UIAmount,
			Decimals:  amt.Decimals,
			RawAmount: raw,
		})
	}
	return out, nil
}

// SignatureInfo is one entry from getSignaturesForAddress, most recent first.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"blockTime"`
}

// GetSignaturesForAddress fetches the most recent transaction signatures
// touching an address.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	var res []SignatureInfo
	err := c.call(ctx, "getSignaturesForAddress",
		[]any{address, map[string]any{"limit": limit}}, &res)
	return res, err
}

// GetTransactionLogs fetches the log messages of a confirmed transaction.
// found is false when the node does not know the signature; that is not an
// error.
func (c *Client) GetTransactionLogs(ctx context.Context, signature string) (logs []string, found bool, err error) {
	var res *struct {
		Meta struct {
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
	}
	err = c.call(ctx, "getTransaction",
		[]any{signature, map[string]any{"encoding": "json", "maxSupportedTransactionVersion": 0}}, &res)
	if err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	return res.Meta.LogMessages, true, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction building.
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &res); err != nil {
		return "", err
	}
	return res.Value.Blockhash, nil
}

// SendRawTransaction broadcasts a signed transaction and returns its
// signature.
func (c *Client) SendRawTransaction(ctx context.Context, txBase64 string) (string, error) {
	var sig string
	err := c.call(ctx, "sendTransaction",
		[]any{txBase64, map[string]any{"encoding": "base64", "skipPreflight": false}}, &sig)
	return sig, err
}

// ConfirmationStatus reports whether a signature has reached the confirmed
// commitment level. found is false while the network has not seen it yet.
func (c *Client) ConfirmationStatus(ctx context.Context, signature string) (confirmed, found bool, err error) {
	var res struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
			Slot               uint64 `json:"slot"`
		} `json:"value"`
	}
	err = c.call(ctx, "getSignatureStatuses", []any{[]string{signature}}, &res)
	if err != nil {
		return false, false, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return false, false, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return false, true, fmt.Errorf("transaction failed on chain: %v", st.Err)
	}
	ok := st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized"
	return ok, true, nil
}
