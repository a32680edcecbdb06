package notifications

import (
	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/aws/awstest"
)

func awsPublisher(q *awstest.SQS) *aws.Publisher {
	return aws.NewPublisher(q, "https://sqs.local/notifications")
}
