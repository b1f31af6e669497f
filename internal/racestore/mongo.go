// internal/racestore/mongo.go
package racestore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/typemasterhq/typemaster/internal/models"
)

// joinableStatuses is the filter fragment for races that still accept players.
var joinableStatuses = bson.M{"$in": bson.A{models.StatusWaiting, models.StatusCountdown}}

// MongoStore is the production Store backed by a MongoDB collection.
//
// Membership-guarded $push, $pull and status compare-and-set use
// storage-native conditional updates; the progress path uses an optimistic
// version CAS because rank and winner assignment depend on the document
// state read in the same operation.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore returns a MongoStore over db's "races" collection and
// ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection("races")
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "raceId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return nil, storageErr("ensure indexes", err)
	}
	return &MongoStore{collection: coll}, nil
}

func (s *MongoStore) CreateRace(ctx context.Context, text, textSource string, maxPlayers int, isPublic bool) (*models.Race, error) {
	if maxPlayers < 2 {
		maxPlayers = 2
	}
	if maxPlayers > 10 {
		maxPlayers = 10
	}
	now := time.Now().UTC()
	race := &models.Race{
		RaceID:     uuid.NewString(),
		Text:       text,
		TextSource: textSource,
		MaxPlayers: maxPlayers,
		Players:    []models.Player{},
		Status:     models.StatusWaiting,
		IsPublic:   isPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.collection.InsertOne(ctx, race); err != nil {
		return nil, storageErr("create race", err)
	}
	return race, nil
}

func (s *MongoStore) FindJoinable(ctx context.Context) (*models.Race, error) {
	filter := bson.M{
		"status":   joinableStatuses,
		"isPublic": true,
		"$expr":    bson.M{"$lt": bson.A{bson.M{"$size": "$players"}, "$maxPlayers"}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	var race models.Race
	err := s.collection.FindOne(ctx, filter, opts).Decode(&race)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find joinable race", err)
	}
	return &race, nil
}

func (s *MongoStore) FindByID(ctx context.Context, raceID string) (*models.Race, error) {
	var race models.Race
	err := s.collection.FindOne(ctx, bson.M{"raceId": raceID}).Decode(&race)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find race", err)
	}
	return &race, nil
}

func (s *MongoStore) ListPublic(ctx context.Context, limit int) ([]models.Race, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.collection.Find(ctx, bson.M{"isPublic": true}, opts)
	if err != nil {
		return nil, storageErr("list races", err)
	}
	defer cur.Close(ctx)

	var races []models.Race
	if err := cur.All(ctx, &races); err != nil {
		return nil, storageErr("decode races", err)
	}
	return races, nil
}

func (s *MongoStore) AddPlayer(ctx context.Context, raceID string, p models.Player) (*models.Race, error) {
	filter := bson.M{
		"raceId":         raceID,
		"status":         joinableStatuses,
		"$expr":          bson.M{"$lt": bson.A{bson.M{"$size": "$players"}, "$maxPlayers"}},
		"players.connId": bson.M{"$ne": p.ConnID},
	}
	update := bson.M{
		"$push": bson.M{"players": p},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
		"$inc":  bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var race models.Race
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&race)
	if err == nil {
		return &race, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storageErr("add player", err)
	}

	// The guarded update matched nothing. Re-read once to report which
	// precondition failed.
	current, ferr := s.FindByID(ctx, raceID)
	if ferr != nil {
		return nil, ferr
	}
	switch {
	case current == nil:
		return nil, ErrRaceNotFound
	case !current.Status.Joinable():
		return nil, ErrRaceNotJoinable
	case len(current.Players) >= current.MaxPlayers:
		return nil, ErrRaceFull
	case current.PlayerByConnID(p.ConnID) != nil:
		return nil, ErrDuplicatePlayer
	default:
		// The race changed between the update and the re-read; treat it as a
		// lost slot so the matchmaker retries.
		return nil, ErrRaceFull
	}
}

func (s *MongoStore) RemovePlayer(ctx context.Context, raceID, connID string) (*models.Race, error) {
	update := bson.M{
		"$pull": bson.M{"players": bson.M{"connId": connID}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
		"$inc":  bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var race models.Race
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"raceId": raceID}, update, opts).Decode(&race)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRaceNotFound
	}
	if err != nil {
		return nil, storageErr("remove player", err)
	}
	return &race, nil
}

// progressRetries bounds the optimistic CAS loop in UpdateProgress. A lost
// race after that many attempts is treated as an expected no-op.
const progressRetries = 3

func (s *MongoStore) UpdateProgress(ctx context.Context, raceID, connID string, upd ProgressUpdate) (*models.Race, bool, error) {
	for attempt := 0; attempt < progressRetries; attempt++ {
		race, err := s.FindByID(ctx, raceID)
		if err != nil {
			return nil, false, err
		}
		if race == nil {
			return nil, false, ErrRaceNotFound
		}
		if race.Status != models.StatusActive {
			return race, false, nil
		}

		player := race.PlayerByConnID(connID)
		if player == nil {
			return nil, false, ErrPlayerNotFound
		}
		if player.IsFinished {
			return race, false, nil
		}

		mutated, finishesRace := applyProgress(race, connID, upd)

		set := bson.M{
			"players":   mutated.Players,
			"updatedAt": time.Now().UTC(),
		}
		if mutated.Winner != race.Winner {
			set["winner"] = mutated.Winner
		}
		if finishesRace {
			set["status"] = models.StatusFinished
			set["endTime"] = mutated.EndTime
		}

		filter := bson.M{"raceId": raceID, "version": race.Version}
		update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var out models.Race
		err = s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue // another writer won the version race; re-read and retry
		}
		if err != nil {
			return nil, false, storageErr("update progress", err)
		}
		return &out, finishesRace, nil
	}

	// Lost every attempt: another process is mutating this race heavily.
	// Observed-stale progress updates are fire-and-forget, so give up.
	race, err := s.FindByID(ctx, raceID)
	if err != nil {
		return nil, false, err
	}
	if race == nil {
		return nil, false, ErrRaceNotFound
	}
	return race, false, nil
}

// applyProgress computes the post-update race state in memory. Shared by the
// Mongo implementation (which then writes it under a version CAS) and the
// in-memory implementation (which applies it under its lock). Returns the
// mutated copy and whether the race finishes with this update.
func applyProgress(race *models.Race, connID string, upd ProgressUpdate) (*models.Race, bool) {
	out := cloneRace(race)
	p := out.PlayerByConnID(connID)

	progress := upd.Progress
	if progress > 100 {
		progress = 100
	}
	if progress > p.Progress {
		p.Progress = progress
	}
	p.WPM = upd.WPM
	p.Accuracy = upd.Accuracy
	p.TypedText = upd.TypedText

	now := time.Now().UTC()
	if p.Progress >= 100 && !p.IsFinished {
		finished := 0
		for _, other := range out.Players {
			if other.IsFinished {
				finished++
			}
		}
		p.IsFinished = true
		p.FinishTime = &now
		p.Rank = finished + 1
		if out.Winner == "" {
			out.Winner = p.Username
		}
	}

	// Finish rule: the race ends when nobody is left racing, or when exactly
	// one racer remains in a race that ever had more than one player.
	unfinished := out.UnfinishedCount()
	finishesRace := unfinished == 0 || (len(out.Players) > 1 && unfinished == 1)
	if finishesRace {
		out.Status = models.StatusFinished
		out.EndTime = &now
	}
	return out, finishesRace
}

func (s *MongoStore) TransitionStatus(ctx context.Context, raceID string, from, to models.RaceStatus) (*models.Race, error) {
	now := time.Now().UTC()
	set := bson.M{"status": to, "updatedAt": now}
	switch to {
	case models.StatusCountdown:
		set["countdownStartTime"] = now
	case models.StatusActive:
		set["startTime"] = now
	case models.StatusFinished:
		set["endTime"] = now
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var race models.Race
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"raceId": raceID, "status": from}, update, opts).Decode(&race)
	if err == nil {
		return &race, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storageErr("transition status", err)
	}

	current, ferr := s.FindByID(ctx, raceID)
	if ferr != nil {
		return nil, ferr
	}
	if current == nil {
		return nil, ErrRaceNotFound
	}
	return nil, ErrInvalidTransition
}

func (s *MongoStore) DeleteRace(ctx context.Context, raceID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"raceId": raceID}); err != nil {
		return storageErr("delete race", err)
	}
	return nil
}

func (s *MongoStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{
		"status":    models.StatusFinished,
		"updatedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, storageErr("sweep finished races", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteEmptyWaitingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{
		"status":    models.StatusWaiting,
		"players.0": bson.M{"$exists": false},
		"updatedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, storageErr("sweep empty races", err)
	}
	return res.DeletedCount, nil
}
