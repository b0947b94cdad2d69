// Command ws_bridge exposes a spawned graphchat process's stdio over a
// WebSocket, so browser front-ends can drive the agent remotely.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage frames one line of subprocess output for the client.
type wsMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ws_bridge [-addr :8080] <command> [args...]")
		os.Exit(1)
	}

	http.HandleFunc("/ws", handleWS(args))
	fmt.Printf("WebSocket bridge listening on %s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer cmd.Process.Kill()

		go pipeLines(conn, stdout, "stdout")
		go pipeLines(conn, stderr, "stderr")

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}

// pipeLines forwards each subprocess output line as a JSON-framed WebSocket
// message.
func pipeLines(conn *websocket.Conn, r interface{ Read([]byte) (int, error) }, kind string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		payload, err := json.Marshal(wsMessage{Type: kind, Data: scanner.Text()})
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Println("WS write error:", err)
			return
		}
	}
}
