// Package main provides a CLI client for the trading venue's REST API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")

	submitCmd := flag.NewFlagSet("submit", flag.ExitOnError)
	submitSymbol := submitCmd.String("symbol", "BTC-USD", "Trading pair symbol")
	submitSide := submitCmd.String("side", "buy", "Order side (buy/sell)")
	submitType := submitCmd.String("type", "limit", "Order type (market/limit/ioc/fok)")
	submitPrice := submitCmd.String("price", "65000.00", "Order price (ignored for market orders)")
	submitQty := submitCmd.String("qty", "1.0", "Order quantity")
	submitUser := submitCmd.String("user", "trader1", "User ID")

	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	cancelSymbol := cancelCmd.String("symbol", "", "Trading pair symbol")
	cancelUser := cancelCmd.String("user", "", "User ID that placed the order")
	cancelOrderID := cancelCmd.Uint64("order-id", 0, "Order ID to cancel")

	bookCmd := flag.NewFlagSet("book", flag.ExitOnError)
	bookSymbol := bookCmd.String("symbol", "BTC-USD", "Trading pair symbol")
	bookDepth := bookCmd.Int("depth", 10, "Number of price levels to show")

	subscribeCmd := flag.NewFlagSet("subscribe", flag.ExitOnError)
	subscribeRealtimeURL := subscribeCmd.String("realtime", "ws://localhost:8081", "Realtime fabric base URL")
	subscribeTopics := subscribeCmd.String("topics", "orderbook:BTC-USD", "Comma-separated topics to subscribe to")
	subscribeToken := subscribeCmd.String("token", "", "Bearer token, required for private topics (orders:/account:)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	flag.Parse()

	switch os.Args[1] {
	case "submit":
		submitCmd.Parse(os.Args[2:])
		submitOrder(*serverURL, *submitSymbol, *submitSide, *submitType, *submitPrice, *submitQty, *submitUser)

	case "cancel":
		cancelCmd.Parse(os.Args[2:])
		cancelOrder(*serverURL, *cancelSymbol, *cancelUser, *cancelOrderID)

	case "book":
		bookCmd.Parse(os.Args[2:])
		getBook(*serverURL, *bookSymbol, *bookDepth)

	case "subscribe":
		subscribeCmd.Parse(os.Args[2:])
		subscribe(*subscribeRealtimeURL, strings.Split(*subscribeTopics, ","), *subscribeToken)

	case "demo":
		runDemo(*serverURL)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Trading Venue Client

Usage:
  client <command> [options]

Commands:
  submit      Submit a new order
  cancel      Cancel an existing order
  book        View order book
  subscribe   Open a websocket and print pushed events for one or more topics
  demo        Run a demonstration

Examples:
  client submit -symbol BTC-USD -side buy -type limit -price 65000.00 -qty 0.5 -user trader1
  client cancel -symbol BTC-USD -user trader1 -order-id 123
  client book -symbol BTC-USD -depth 10
  client subscribe -topics orderbook:BTC-USD,price:BTC-USD,trades:BTC-USD
  client demo`)
}

func submitOrder(serverURL, symbol, side, orderType, price, qty, userID string) {
	req := map[string]interface{}{
		"symbol":  symbol,
		"side":    side,
		"type":    orderType,
		"price":   price,
		"qty":     qty,
		"user_id": userID,
	}

	resp, err := postJSON(serverURL+"/api/trading/orders", req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Order Response:\n")
	printJSON(resp)
}

func cancelOrder(serverURL, symbol, userID string, orderID uint64) {
	url := fmt.Sprintf("%s/api/trading/orders/%d?symbol=%s&user_id=%s", serverURL, orderID, symbol, userID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Cancel Response:\n")
	printJSONBytes(body)
}

func getBook(serverURL, symbol string, depth int) {
	url := fmt.Sprintf("%s/api/trading/orderbook/%s?depth=%d", serverURL, symbol, depth)

	resp, err := http.Get(url)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var envelope map[string]interface{}
	json.Unmarshal(body, &envelope)

	data, _ := envelope["data"].(map[string]interface{})
	if data == nil {
		fmt.Printf("Error response:\n")
		printJSONBytes(body)
		return
	}

	fmt.Printf("\n=== %s Order Book ===\n\n", symbol)

	if asks, ok := data["asks"].([]interface{}); ok {
		fmt.Println("ASKS:")
		for i := len(asks) - 1; i >= 0; i-- {
			if ask, ok := asks[i].(map[string]interface{}); ok {
				fmt.Printf("  %v @ %v\n", ask["qty"], ask["price"])
			}
		}
	}

	if bids, ok := data["bids"].([]interface{}); ok {
		fmt.Println("BIDS:")
		for _, bid := range bids {
			if b, ok := bid.(map[string]interface{}); ok {
				fmt.Printf("  %v @ %v\n", b["qty"], b["price"])
			}
		}
	}
}

// subscribe opens a websocket to the realtime fabric, authenticates if a
// token is given, subscribes to topics, and prints every pushed event
// until the connection closes or the process is interrupted.
func subscribe(realtimeURL string, topics []string, token string) {
	conn, _, err := websocket.DefaultDialer.Dial(realtimeURL+"/ws", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer conn.Close()

	if token != "" {
		auth := map[string]interface{}{"method": "Authenticate", "topics": []string{token}}
		if err := conn.WriteJSON(auth); err != nil {
			fmt.Printf("Error authenticating: %v\n", err)
			return
		}
	}

	sub := map[string]interface{}{"method": "SubscribeOrderBook", "topics": topics}
	if err := conn.WriteJSON(sub); err != nil {
		fmt.Printf("Error subscribing: %v\n", err)
		return
	}

	fmt.Printf("Subscribed to: %s\n", strings.Join(topics, ", "))
	for {
		var push map[string]interface{}
		if err := conn.ReadJSON(&push); err != nil {
			fmt.Printf("Connection closed: %v\n", err)
			return
		}
		printJSON(push)
	}
}

func runDemo(serverURL string) {
	fmt.Println("=== Trading Venue Demo ===")

	fmt.Println("1. Initial order book (empty):")
	getBook(serverURL, "BTC-USD", 5)

	fmt.Println("\n2. Market maker (MM1) posts buy orders:")
	submitOrder(serverURL, "BTC-USD", "buy", "limit", "64900.00", "0.5", "MM1")
	submitOrder(serverURL, "BTC-USD", "buy", "limit", "64800.00", "1.0", "MM1")
	submitOrder(serverURL, "BTC-USD", "buy", "limit", "64700.00", "1.5", "MM1")

	fmt.Println("\n3. Market maker (MM1) posts sell orders:")
	submitOrder(serverURL, "BTC-USD", "sell", "limit", "65100.00", "0.5", "MM1")
	submitOrder(serverURL, "BTC-USD", "sell", "limit", "65200.00", "1.0", "MM1")
	submitOrder(serverURL, "BTC-USD", "sell", "limit", "65300.00", "1.5", "MM1")

	fmt.Println("\n4. Order book with liquidity:")
	getBook(serverURL, "BTC-USD", 5)

	fmt.Println("\n5. Trader (trader1) buys 0.75 BTC with a market order:")
	submitOrder(serverURL, "BTC-USD", "buy", "market", "0", "0.75", "trader1")

	fmt.Println("\n6. Order book after trade:")
	getBook(serverURL, "BTC-USD", 5)

	fmt.Println("\n=== Demo Complete ===")
}

func postJSON(url string, data interface{}) (map[string]interface{}, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	err = json.Unmarshal(body, &result)
	return result, err
}

func printJSON(data interface{}) {
	jsonBytes, _ := json.MarshalIndent(data, "", "  ")
	fmt.Println(string(jsonBytes))
}

func printJSONBytes(data []byte) {
	var obj interface{}
	json.Unmarshal(data, &obj)
	printJSON(obj)
}
