package metrics

const (
	PublisherFramesSentN = "goose_publisher_frames_sent_total"
	PublisherFramesSentH = "The total number of GOOSE frames sent"

	PublisherStateChangesN = "goose_publisher_state_changes_total"
	PublisherStateChangesH = "The total number of published state changes (stNum increments)"

	PublisherSendErrorsN = "goose_publisher_send_errors_total"
	PublisherSendErrorsH = "The total number of frames that could not be sent"

	PublisherStNumN = "goose_publisher_st_num"
	PublisherStNumH = "The stNum of the last frame sent"

	SubscriberFramesReceivedN = "goose_subscriber_frames_received_total"
	SubscriberFramesReceivedH = "The total number of GOOSE frames decoded"

	SubscriberDecodeErrorsN = "goose_subscriber_decode_errors_total"
	SubscriberDecodeErrorsH = "The total number of received frames dropped as malformed"

	SubscriberStateChangesN = "goose_subscriber_state_changes_total"
	SubscriberStateChangesH = "The total number of stNum changes observed"

	SubscriberInterArrivalN = "goose_subscriber_inter_arrival_seconds"
	SubscriberInterArrivalH = "Time between consecutive frames of the same goID"
)
