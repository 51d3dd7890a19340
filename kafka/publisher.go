// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package kafka mirrors persisted change rows to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"

	"github.com/Shopify/sarama"
	"github.com/pilosa/wdhistory/store"
	"github.com/pkg/errors"
)

// JSONRow implements the sarama.Encoder interface for one row using json.
type JSONRow map[string]interface{}

// Encode marshals the row to json.
func (r JSONRow) Encode() ([]byte, error) {
	return json.Marshal(map[string]interface{}(r))
}

// Length returns the length of the marshalled json.
func (r JSONRow) Length() int {
	bytes, _ := r.Encode()
	return len(bytes)
}

// Publisher sends every row it is given as a JSON message. Messages are
// keyed by entity so the changes of one entity stay ordered within a
// partition. It implements store.Mirror.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ store.Mirror = &Publisher{}

// NewPublisher connects a producer to hosts.
func NewPublisher(hosts []string, topic string) (*Publisher, error) {
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	return NewPublisherWithProducer(producer, topic), nil
}

// NewPublisherWithProducer returns a Publisher sending through producer.
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Publish sends rows of table, whose columns are cols.
func (p *Publisher) Publish(ctx context.Context, table string, cols []string, rows []store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entityCol := -1
	for i, c := range cols {
		if c == "entity_id" {
			entityCol = i
		}
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(cols) {
			return errors.Errorf("row of %s has %d values for %d columns", table, len(row), len(cols))
		}
		val := make(JSONRow, len(cols)+1)
		val["table"] = table
		for i, c := range cols {
			val[c] = row[i]
		}
		msg := &sarama.ProducerMessage{Topic: p.topic, Value: val}
		if entityCol >= 0 {
			msg.Key = sarama.StringEncoder(fmt.Sprint(row[entityCol]))
		}
		msgs = append(msgs, msg)
	}
	err := p.producer.SendMessages(msgs)
	return errors.Wrapf(err, "sending %d messages", len(msgs))
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return errors.Wrap(p.producer.Close(), "closing kafka producer")
}
