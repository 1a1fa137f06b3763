// Package provision submits serialized templates to the CloudFormation API.
// The template-assembly core hands it a complete document and treats any
// failure as fatal for the run; infrastructure mutation is never retried
// automatically.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// ProvisioningError carries the provider's error payload verbatim so the
// operator sees exactly what the API rejected.
type ProvisioningError struct {
	Op      string
	Stack   string
	Message string
	Cause   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s of stack %q failed: %s", e.Op, e.Stack, e.Message)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Cause
}

// Client wraps the CloudFormation API with the narrow surface the build
// core needs.
type Client struct {
	api *cloudformation.Client
	log *zap.SugaredLogger
}

// New builds a client for the given region, resolving credentials from the
// named profile when one is supplied.
func New(ctx context.Context, region, profile string) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		api: cloudformation.NewFromConfig(cfg),
		log: zap.S().Named("provision"),
	}, nil
}

// Validate asks the provider to check the template document. This is a
// best-effort lint; the create and update paths run it before mutating
// anything.
func (c *Client) Validate(ctx context.Context, name, body string) error {
	_, err := c.api.ValidateTemplate(ctx, &cloudformation.ValidateTemplateInput{
		TemplateBody: aws.String(body),
	})
	if err != nil {
		return c.wrap("validate", name, err)
	}
	return nil
}

// Create submits a new stack and returns its assigned stack id.
func (c *Client) Create(ctx context.Context, name, body string, tags map[string]string) (string, error) {
	if err := c.Validate(ctx, name, body); err != nil {
		return "", err
	}
	input := &cloudformation.CreateStackInput{
		StackName:    aws.String(name),
		TemplateBody: aws.String(body),
	}
	for key, value := range tags {
		input.Tags = append(input.Tags, types.Tag{
			Key:   aws.String(key),
			Value: aws.String(value),
		})
	}
	out, err := c.api.CreateStack(ctx, input)
	if err != nil {
		return "", c.wrap("create", name, err)
	}
	c.log.Debugf("created stack %s", aws.ToString(out.StackId))
	return aws.ToString(out.StackId), nil
}

// Update submits a changed template for an existing stack.
func (c *Client) Update(ctx context.Context, name, body string) error {
	if err := c.Validate(ctx, name, body); err != nil {
		return err
	}
	_, err := c.api.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(name),
		TemplateBody: aws.String(body),
	})
	if err != nil {
		return c.wrap("update", name, err)
	}
	return nil
}

// Delete removes a stack.
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(name),
	})
	if err != nil {
		return c.wrap("delete", name, err)
	}
	return nil
}

// EstimateCost returns the provider's cost calculator URL for the template.
func (c *Client) EstimateCost(ctx context.Context, name, body string) (string, error) {
	out, err := c.api.EstimateTemplateCost(ctx, &cloudformation.EstimateTemplateCostInput{
		TemplateBody: aws.String(body),
	})
	if err != nil {
		return "", c.wrap("estimate-cost", name, err)
	}
	return aws.ToString(out.Url), nil
}

func (c *Client) wrap(op, stack string, err error) error {
	message := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.ErrorMessage()
	}
	return &ProvisioningError{Op: op, Stack: stack, Message: message, Cause: err}
}
