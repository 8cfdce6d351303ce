package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Signaling       Category = "Signaling"
	Registry        Category = "Registry"
	Routing         Category = "Routing"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	Mongo           Category = "Mongo"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Signaling
	Register   SubCategory = "Register"
	Discover   SubCategory = "Discover"
	Metadata   SubCategory = "Metadata"
	Forward    SubCategory = "Forward"
	Disconnect SubCategory = "Disconnect"
)

const (
	AppName      ExtraKey = "AppName"
	RoomID       ExtraKey = "RoomID"
	PeerID       ExtraKey = "PeerID"
	TargetPeerID ExtraKey = "TargetPeerID"
	InstanceID   ExtraKey = "InstanceID"
	ClientIp     ExtraKey = "ClientIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
)
