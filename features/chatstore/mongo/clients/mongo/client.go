// Package mongo hosts the MongoDB client used by the chat store.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/korefocus/diligence/runtime/chat"
)

const (
	defaultChatsCollection    = "chats"
	defaultMessagesCollection = "chat_messages"
	defaultOpTimeout          = 5 * time.Second
	chatClientName            = "chatstore-mongo"
)

// Client exposes Mongo-backed operations for chats and messages. It covers
// the chat.Store contract plus health checking.
type Client interface {
	health.Pinger

	SaveChat(ctx context.Context, c *chat.Chat) error
	LoadChat(ctx context.Context, id string) (*chat.Chat, error)
	DeleteChat(ctx context.Context, id string) (*chat.Chat, error)
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateAttachments(ctx context.Context, id string, atts []chat.Attachment) error
	SaveMessage(ctx context.Context, m *chat.Message) error
	ListMessages(ctx context.Context, chatID string) ([]*chat.Message, error)
	AppendRun(ctx context.Context, chatID, runID string) error
	ListRuns(ctx context.Context, chatID string) ([]string, error)
}

// Options configures the Mongo chat client.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	ChatsCollection    string
	MessagesCollection string
	Timeout            time.Duration
}

type client struct {
	mongo    *mongodriver.Client
	chats    collection
	messages collection
	timeout  time.Duration
}

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	chatsCollection := opts.ChatsCollection
	if chatsCollection == "" {
		chatsCollection = defaultChatsCollection
	}
	messagesCollection := opts.MessagesCollection
	if messagesCollection == "" {
		messagesCollection = defaultMessagesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	chatsColl := opts.Client.Database(opts.Database).Collection(chatsCollection)
	messagesColl := opts.Client.Database(opts.Database).Collection(messagesCollection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	chatsWrapper := mongoCollection{coll: chatsColl}
	messagesWrapper := mongoCollection{coll: messagesColl}
	if err := ensureIndexes(ctx, chatsWrapper, messagesWrapper); err != nil {
		return nil, err
	}
	return newClientWithCollections(opts.Client, chatsWrapper, messagesWrapper, timeout)
}

func (c *client) Name() string {
	return chatClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

// SaveChat creates the chat if absent. A pure $setOnInsert upsert keeps the
// operation idempotent under retries and concurrent first posts.
func (c *client) SaveChat(ctx context.Context, ch *chat.Chat) error {
	if ch == nil || ch.ID == "" {
		return errors.New("chat id is required")
	}
	doc := fromChat(ch)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"chat_id": ch.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"chat_id":     doc.ChatID,
			"user_id":     doc.UserID,
			"title":       doc.Title,
			"visibility":  doc.Visibility,
			"attachments": doc.Attachments,
			"run_ids":     []string{},
			"created_at":  doc.CreatedAt,
		},
	}
	_, err := c.chats.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (c *client) LoadChat(ctx context.Context, id string) (*chat.Chat, error) {
	doc, err := c.loadChatDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toChat(), nil
}

func (c *client) DeleteChat(ctx context.Context, id string) (*chat.Chat, error) {
	doc, err := c.loadChatDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.chats.DeleteOne(ctx, bson.M{"chat_id": id})
	if err != nil {
		return nil, err
	}
	if res.DeletedCount == 0 {
		return nil, chat.ErrChatNotFound
	}
	if _, err := c.messages.DeleteMany(ctx, bson.M{"chat_id": id}); err != nil {
		return nil, err
	}
	return doc.toChat(), nil
}

func (c *client) UpdateTitle(ctx context.Context, id, title string) error {
	if id == "" {
		return errors.New("chat id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.chats.UpdateOne(ctx, bson.M{"chat_id": id}, bson.M{"$set": bson.M{"title": title}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

func (c *client) UpdateAttachments(ctx context.Context, id string, atts []chat.Attachment) error {
	if id == "" {
		return errors.New("chat id is required")
	}
	docs := fromAttachments(atts)
	if docs == nil {
		docs = []attachmentDocument{}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.chats.UpdateOne(ctx, bson.M{"chat_id": id}, bson.M{"$set": bson.M{"attachments": docs}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

// SaveMessage persists the message with a $setOnInsert upsert keyed by
// message ID. A zero upsert count means another writer won the ID.
func (c *client) SaveMessage(ctx context.Context, m *chat.Message) error {
	if m == nil || m.ID == "" {
		return errors.New("message id is required")
	}
	if m.ChatID == "" {
		return errors.New("chat id is required")
	}
	if _, err := c.loadChatDocument(ctx, m.ChatID); err != nil {
		return err
	}
	doc, err := fromMessage(m)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"message_id": m.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"message_id":  doc.MessageID,
			"chat_id":     doc.ChatID,
			"role":        doc.Role,
			"parts":       doc.Parts,
			"attachments": doc.Attachments,
			"created_at":  doc.CreatedAt,
		},
	}
	res, err := c.messages.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return err
	}
	if res.UpsertedCount == 0 {
		return chat.ErrMessageExists
	}
	return nil
}

func (c *client) ListMessages(ctx context.Context, chatID string) ([]*chat.Message, error) {
	if _, err := c.loadChatDocument(ctx, chatID); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.messages.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []*chat.Message
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		msg, err := doc.toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) AppendRun(ctx context.Context, chatID, runID string) error {
	if chatID == "" {
		return errors.New("chat id is required")
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.chats.UpdateOne(ctx, bson.M{"chat_id": chatID}, bson.M{"$push": bson.M{"run_ids": runID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrChatNotFound
	}
	return nil
}

func (c *client) ListRuns(ctx context.Context, chatID string) ([]string, error) {
	doc, err := c.loadChatDocument(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), doc.RunIDs...), nil
}

func (c *client) loadChatDocument(ctx context.Context, id string) (*chatDocument, error) {
	if id == "" {
		return nil, errors.New("chat id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc chatDocument
	if err := c.chats.FindOne(ctx, bson.M{"chat_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, chat.ErrChatNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type chatDocument struct {
	ChatID      string               `bson:"chat_id"`
	UserID      string               `bson:"user_id"`
	Title       string               `bson:"title"`
	Visibility  string               `bson:"visibility"`
	Attachments []attachmentDocument `bson:"attachments,omitempty"`
	RunIDs      []string             `bson:"run_ids,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
}

type messageDocument struct {
	MessageID string `bson:"message_id"`
	ChatID    string `bson:"chat_id"`
	Role      string `bson:"role"`
	// Parts stores the tagged-union JSON encoding verbatim so the part
	// vocabulary stays owned by the chat package.
	Parts       []byte               `bson:"parts"`
	Attachments []attachmentDocument `bson:"attachments,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
}

type attachmentDocument struct {
	URL         string `bson:"url"`
	Name        string `bson:"name"`
	ContentType string `bson:"content_type"`
}

func fromChat(c *chat.Chat) chatDocument {
	return chatDocument{
		ChatID:      c.ID,
		UserID:      c.UserID,
		Title:       c.Title,
		Visibility:  string(c.Visibility),
		Attachments: fromAttachments(c.Attachments),
		CreatedAt:   c.CreatedAt.UTC(),
	}
}

func (doc *chatDocument) toChat() *chat.Chat {
	return &chat.Chat{
		ID:          doc.ChatID,
		UserID:      doc.UserID,
		Title:       doc.Title,
		Visibility:  chat.Visibility(doc.Visibility),
		Attachments: toAttachments(doc.Attachments),
		CreatedAt:   doc.CreatedAt.UTC(),
	}
}

func fromMessage(m *chat.Message) (messageDocument, error) {
	parts, err := json.Marshal(m.Parts)
	if err != nil {
		return messageDocument{}, err
	}
	return messageDocument{
		MessageID:   m.ID,
		ChatID:      m.ChatID,
		Role:        string(m.Role),
		Parts:       parts,
		Attachments: fromAttachments(m.Attachments),
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}

func (doc messageDocument) toMessage() (*chat.Message, error) {
	var parts chat.Parts
	if len(doc.Parts) > 0 {
		if err := json.Unmarshal(doc.Parts, &parts); err != nil {
			return nil, err
		}
	}
	return &chat.Message{
		ID:          doc.MessageID,
		ChatID:      doc.ChatID,
		Role:        chat.Role(doc.Role),
		Parts:       parts,
		Attachments: toAttachments(doc.Attachments),
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

func fromAttachments(atts []chat.Attachment) []attachmentDocument {
	if len(atts) == 0 {
		return nil
	}
	out := make([]attachmentDocument, len(atts))
	for i, a := range atts {
		out[i] = attachmentDocument{URL: a.URL, Name: a.Name, ContentType: a.ContentType}
	}
	return out
}

func toAttachments(docs []attachmentDocument) []chat.Attachment {
	if len(docs) == 0 {
		return nil
	}
	out := make([]chat.Attachment, len(docs))
	for i, d := range docs {
		out[i] = chat.Attachment{URL: d.URL, Name: d.Name, ContentType: d.ContentType}
	}
	return out
}

func ensureIndexes(ctx context.Context, chatsColl, messagesColl collection) error {
	chatIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := chatsColl.Indexes().CreateOne(ctx, chatIndex); err != nil {
		return err
	}
	messageIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := messagesColl.Indexes().CreateOne(ctx, messageIndex); err != nil {
		return err
	}
	messageChatIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "chat_id", Value: 1},
			{Key: "created_at", Value: 1},
		},
	}
	if _, err := messagesColl.Indexes().CreateOne(ctx, messageChatIndex); err != nil {
		return err
	}
	return nil
}

func newClientWithCollections(mongoClient *mongodriver.Client, chatsColl, messagesColl collection, timeout time.Duration) (*client, error) {
	if chatsColl == nil || messagesColl == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:    mongoClient,
		chats:    chatsColl,
		messages: messagesColl,
		timeout:  timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	DeleteMany(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteManyOptions]) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) DeleteMany(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteManyOptions]) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteMany(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
