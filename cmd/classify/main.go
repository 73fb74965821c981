// Command classify drives the upload and predict flows from a terminal
// against a running classifier server.
//
//	classify [-server URL] upload -model resnet50.onnx [-labels labels.txt]
//	classify [-server URL] predict -url https://example.com/cat.jpg
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Brownie44l1/imageclassifier/internal/client"
	"github.com/Brownie44l1/imageclassifier/internal/config"
	"github.com/Brownie44l1/imageclassifier/internal/ui"
)

var errUsage = errors.New("usage: classify [-env file] [-server url] upload -model file [-labels file] | predict -url image_url")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	envFile := config.EnvFlag(fs)
	server := fs.String("server", "", "classifier base URL (default $CLASSIFIER_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if *server != "" {
		cfg.ServerURL = *server
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	doc := ui.NewMemoryDocument(ui.AllElementIDs...)
	page, err := ui.Bind(doc, client.New(cfg.ServerURL))
	if err != nil {
		return err
	}

	var resultID string
	switch rest[0] {
	case "upload":
		resultID, err = upload(doc, rest[1:])
	case "predict":
		resultID, err = predict(doc, rest[1:])
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	page.Wait()
	fmt.Fprintln(out, strings.TrimSpace(doc.Element(resultID).Text()))
	return nil
}

func upload(doc *ui.MemoryDocument, args []string) (string, error) {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	modelPath := fs.String("model", "", "ONNX model file")
	labelsPath := fs.String("labels", "", "labels file (optional)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	if *modelPath != "" {
		doc.Element(ui.ModelFileID).SetFiles(client.PathFile(*modelPath))
	}
	if *labelsPath != "" {
		doc.Element(ui.LabelsFileID).SetFiles(client.PathFile(*labelsPath))
	}
	return ui.UploadResultID, doc.Click(ui.UploadButtonID)
}

func predict(doc *ui.MemoryDocument, args []string) (string, error) {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	imageURL := fs.String("url", "", "image URL")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	doc.Element(ui.ImageURLID).SetValue(*imageURL)
	return ui.ResultID, doc.Click(ui.PredictButtonID)
}
