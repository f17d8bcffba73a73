// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the HTTP request to a WebSocket connection, wraps
// it in a new Session, and hands it to the hub, which starts the read/write
// pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	session := NewSession(conn, hub, r.RemoteAddr)
	session.hub.Register(session)
}

// HealthHandler provides a plain-text health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// TestPageHandler serves an HTML page for exercising the room protocol by
// hand: join a room, exchange messages, and watch typing indicators. The page
// debounces typing input for one second before emitting stop-typing, the same
// behavior expected of real clients.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        #typing { color: gray; font-style: italic; min-height: 1.2em; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="roomInput" placeholder="Room id" value="lobby">
        <input type="text" id="nameInput" placeholder="Username">
        <button id="joinButton" onclick="toggleConnection()">Join</button>
    </div>

    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let typingTimer = null;
        const userId = 'user-' + Math.random().toString(36).slice(2, 10);
        const typingUsers = new Map();

        const messagesDiv = document.getElementById('messages');
        const typingDiv = document.getElementById('typing');
        const roomInput = document.getElementById('roomInput');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const joinButton = document.getElementById('joinButton');
        const statusDiv = document.getElementById('status');

        function emit(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ event: event, data: data }));
            }
        }

        function addMessage(text, mine) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = mine ? 'blue' : 'green';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderTyping() {
            const names = Array.from(typingUsers.values());
            typingDiv.textContent = names.length
                ? names.join(', ') + (names.length === 1 ? ' is' : ' are') + ' typing...'
                : '';
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            joinButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            const roomId = roomInput.value.trim() || 'lobby';
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                updateStatus(true);
                emit('join-room', { roomId: roomId });
            };

            ws.onmessage = function(e) {
                const frame = JSON.parse(e.data);
                if (frame.event === 'receive-message') {
                    const d = frame.data;
                    addMessage(d.username + ': ' + d.message + ' (' + d.timestamp + ')', d.userId === userId);
                } else if (frame.event === 'user-typing') {
                    typingUsers.set(frame.data.userId, frame.data.username);
                    renderTyping();
                } else if (frame.event === 'user-stop-typing') {
                    typingUsers.delete(frame.data.userId);
                    renderTyping();
                }
            };

            ws.onclose = function() {
                updateStatus(false);
                typingUsers.clear();
                renderTyping();
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            const roomId = roomInput.value.trim() || 'lobby';
            if (!message) return;
            emit('send-message', {
                roomId: roomId,
                message: message,
                userId: userId,
                username: nameInput.value || 'anonymous'
            });
            stopTyping();
            messageInput.value = '';
        }

        function stopTyping() {
            if (typingTimer) {
                clearTimeout(typingTimer);
                typingTimer = null;
            }
            emit('stop-typing', { roomId: roomInput.value.trim() || 'lobby', userId: userId });
        }

        messageInput.addEventListener('input', function() {
            const roomId = roomInput.value.trim() || 'lobby';
            emit('typing', { roomId: roomId, userId: userId, username: nameInput.value || 'anonymous' });
            if (typingTimer) clearTimeout(typingTimer);
            typingTimer = setTimeout(stopTyping, 1000);
        });

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
