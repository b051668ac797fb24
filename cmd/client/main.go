package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/client"
	"github.com/palemoky/quest-arena/internal/protocol"
)

// 输入格式：<消息类型> [JSON 载荷]，例如
//
//	create_room {"name":"Keep"}
//	end_turn {"session_id":"...","actor_id":"..."}
func main() {
	serverAddr := flag.String("server", "localhost:1780", "服务器地址")
	token := flag.String("token", os.Getenv("QUEST_ARENA_TOKEN"), "身份令牌 (JWT)")
	heartbeat := flag.Bool("heartbeat", true, "定期发送心跳并显示延迟")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *token == "" {
		logrus.Fatal("缺少身份令牌，使用 -token 或 QUEST_ARENA_TOKEN")
	}

	view := client.NewSessionView()
	c := client.NewClient(fmt.Sprintf("ws://%s/ws", *serverAddr), *token)
	c.OnMessage = func(msg *protocol.Message) {
		view.Apply(msg)
		printMessage(msg)
		if msg.Type == protocol.MsgTurnChanged {
			userID, _, _ := c.Identity()
			if view.IsMyTurn(userID) {
				logrus.Info("🎯 轮到你行动了")
			}
		}
	}
	c.OnReconnecting = func(attempt, total int) {
		logrus.WithFields(logrus.Fields{"attempt": attempt, "max": total}).Warn("连接断开，正在重连")
	}
	c.OnReconnect = func() { logrus.Info("✅ 重连成功") }

	if err := c.Connect(); err != nil {
		logrus.WithError(err).Fatal("连接服务器失败")
	}
	defer c.Close()
	if *heartbeat {
		c.StartHeartbeat()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	lines := make(chan string)
	go readLines(lines)

	for {
		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := send(c, line); err != nil {
				logrus.WithError(err).Warn("发送失败")
			}
		}
	}
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out <- line
		}
	}
}

// send 解析一行输入并发送
func send(c *client.Client, line string) error {
	msgType, raw, _ := strings.Cut(line, " ")
	msg := &protocol.Message{Type: protocol.MessageType(msgType)}
	if raw = strings.TrimSpace(raw); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("载荷不是合法 JSON: %s", raw)
		}
		msg.Payload = json.RawMessage(raw)
	}
	return c.SendMessage(msg)
}

func printMessage(msg *protocol.Message) {
	entry := logrus.WithField("type", msg.Type)
	if msg.Type == protocol.MsgError {
		entry.Warn(string(msg.Payload))
		return
	}
	entry.Info(string(msg.Payload))
}
