// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// gateway 命令行客户端：对 HTTP API 的薄封装，便于脚本化操作
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version":
		fmt.Println("filesearch-gateway cli 0.1.0")
	case "health":
		runHealth()
	case "create":
		requireArgs(args, 1, "create <store>")
		runCreate(args[0])
	case "list":
		runList()
	case "delete":
		requireArgs(args, 1, "delete <store>")
		runDelete(args[0])
	case "upload":
		requireArgs(args, 2, "upload <store> <file...>")
		runUpload(args[0], args[1:])
	case "delete-doc":
		requireArgs(args, 2, "delete-doc <store> <doc_id>")
		runDeleteDoc(args[0], args[1])
	case "ask":
		requireArgs(args, 1, "ask <question> [store...]")
		runAsk(args[0], args[1:])
	case "sync":
		requireArgs(args, 1, "sync <store>")
		runSync(args[0])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: fsgw <command> [args]

Commands:
  create <store>                create a document store
  list                          list stores
  delete <store>                delete a store
  upload <store> <file...>      upload files into a store
  delete-doc <store> <doc_id>   delete an indexed document
  ask <question> [store...]     ask a question against stores
  sync <store>                  reconcile local metadata with vendor
  health                        check gateway health
  version                       print version

Environment:
  GATEWAY_URL     gateway base URL (default http://localhost:8080)
  GEMINI_API_KEY  API key sent with each request`)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: fsgw %s\n", usage)
		os.Exit(1)
	}
}

func client() *resty.Client {
	base := os.Getenv("GATEWAY_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return resty.New().SetBaseURL(base).SetTimeout(5 * time.Minute)
}

func apiKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// printResponse 统一输出：成功打印格式化 JSON，失败打印状态与 body
func printResponse(resp *resty.Response, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	var pretty json.RawMessage
	if json.Unmarshal(resp.Body(), &pretty) == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(strings.TrimSpace(string(resp.Body())))
	}
	if resp.IsError() {
		os.Exit(1)
	}
}

func runHealth() {
	printResponse(client().R().Get("/health"))
}

func runCreate(store string) {
	printResponse(client().R().
		SetBody(map[string]string{"api_key": apiKey(), "store_name": store}).
		Post("/stores/create"))
}

func runList() {
	printResponse(client().R().
		SetQueryParam("api_key", apiKey()).
		Get("/stores"))
}

func runDelete(store string) {
	printResponse(client().R().
		SetQueryParam("api_key", apiKey()).
		Delete("/stores/" + store))
}

func runUpload(store string, paths []string) {
	req := client().R().SetFormData(map[string]string{"api_key": apiKey()})
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", p, err)
			os.Exit(1)
		}
		defer f.Close()
		req.SetFileReader("files", filepath.Base(p), f)
	}
	printResponse(req.Post("/stores/" + store + "/upload"))
}

func runDeleteDoc(store, docID string) {
	printResponse(client().R().
		SetQueryParam("api_key", apiKey()).
		Delete("/stores/" + store + "/documents/" + docID))
}

func runAsk(question string, stores []string) {
	printResponse(client().R().
		SetBody(map[string]interface{}{
			"api_key":  apiKey(),
			"question": question,
			"stores":   stores,
		}).
		Post("/ask"))
}

func runSync(store string) {
	printResponse(client().R().
		SetBody(map[string]string{"api_key": apiKey()}).
		Post("/stores/" + store + "/sync"))
}
